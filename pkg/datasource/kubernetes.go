package datasource

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/opscart/cloud-cost-observer/pkg/models"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Well-known node labels
const (
	labelRegion           = "topology.kubernetes.io/region"
	labelRegionLegacy     = "failure-domain.beta.kubernetes.io/region"
	labelZone             = "topology.kubernetes.io/zone"
	labelZoneLegacy       = "failure-domain.beta.kubernetes.io/zone"
	labelInstanceType     = "node.kubernetes.io/instance-type"
	labelInstanceTypeBeta = "beta.kubernetes.io/instance-type"
)

// NodeState values beyond running/stopped
const StateNotReady = "not-ready"

// NodeUsageLister returns current resource usage keyed by node name
type NodeUsageLister interface {
	NodeUsage(ctx context.Context) (map[string]corev1.ResourceList, error)
}

// metricsServerLister reads node usage from metrics-server
type metricsServerLister struct {
	client metricsv.Interface
}

// NewMetricsServerLister adapts a metrics clientset
func NewMetricsServerLister(client metricsv.Interface) NodeUsageLister {
	return &metricsServerLister{client: client}
}

func (m *metricsServerLister) NodeUsage(ctx context.Context) (map[string]corev1.ResourceList, error) {
	list, err := m.client.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list node metrics: %w", err)
	}
	usage := make(map[string]corev1.ResourceList, len(list.Items))
	for _, item := range list.Items {
		usage[item.Name] = item.Usage
	}
	return usage, nil
}

// KubeConfig builds a rest config from kubeconfig, ~/.kube/config, or in-cluster
func KubeConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		inCluster, inErr := rest.InClusterConfig()
		if inErr != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
		return inCluster, nil
	}
	return config, nil
}

// KubernetesInventory treats cluster nodes as compute instances
type KubernetesInventory struct {
	clientset kubernetes.Interface
	usage     NodeUsageLister
}

func NewKubernetesInventory(clientset kubernetes.Interface, usage NodeUsageLister) *KubernetesInventory {
	return &KubernetesInventory{clientset: clientset, usage: usage}
}

func (k *KubernetesInventory) Name() string {
	return "kubernetes"
}

// ListInstances maps nodes in region (or all nodes) to descriptors
func (k *KubernetesInventory) ListInstances(ctx context.Context, region string) ([]models.InstanceDescriptor, error) {
	nodes, err := k.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrapErr(k.Name(), "list nodes", err)
	}

	var usage map[string]corev1.ResourceList
	if k.usage != nil {
		// metrics-server is optional; missing usage leaves memory unknown
		if u, err := k.usage.NodeUsage(ctx); err == nil {
			usage = u
		}
	}

	var instances []models.InstanceDescriptor
	for _, node := range nodes.Items {
		desc := nodeDescriptor(node)
		if region != RegionAll && region != "" && desc.Region != region {
			continue
		}
		if u, ok := usage[node.Name]; ok {
			desc.MemoryUtilizationAvg24h = percentOf(u, node.Status.Allocatable, corev1.ResourceMemory)
		}
		instances = append(instances, desc)
	}

	sort.Slice(instances, func(i, j int) bool { return instances[i].InstanceID < instances[j].InstanceID })
	return instances, nil
}

func nodeDescriptor(node corev1.Node) models.InstanceDescriptor {
	labels := node.Labels
	launch := node.CreationTimestamp.Time

	desc := models.InstanceDescriptor{
		InstanceID:       node.Name,
		Name:             node.Name,
		Region:           firstLabel(labels, labelRegion, labelRegionLegacy),
		AvailabilityZone: firstLabel(labels, labelZone, labelZoneLegacy),
		InstanceType:     firstLabel(labels, labelInstanceType, labelInstanceTypeBeta),
		State:            nodeState(node),
		Tags:             make(map[string]string, len(labels)+1),
	}
	if !launch.IsZero() {
		desc.LaunchTime = &launch
	}
	if desc.InstanceType == "" {
		desc.InstanceType = "unknown"
	}
	for k, v := range labels {
		desc.Tags[k] = v
	}
	if node.Spec.ProviderID != "" {
		desc.Tags["providerID"] = node.Spec.ProviderID
	}
	return desc
}

func nodeState(node corev1.Node) string {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status == corev1.ConditionTrue {
				return models.StateRunning
			}
			return StateNotReady
		}
	}
	return StateNotReady
}

func firstLabel(labels map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := labels[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

func percentOf(usage, allocatable corev1.ResourceList, name corev1.ResourceName) *float64 {
	used, ok := usage[name]
	if !ok {
		return nil
	}
	total, ok := allocatable[name]
	if !ok || total.IsZero() {
		return nil
	}
	var pct float64
	if name == corev1.ResourceCPU {
		pct = float64(used.MilliValue()) / float64(total.MilliValue()) * 100
	} else {
		pct = float64(used.Value()) / float64(total.Value()) * 100
	}
	return &pct
}

// KubernetesUtilization answers CPU from a metrics-server snapshot when no
// Prometheus is available. Average and maximum are both the current reading.
type KubernetesUtilization struct {
	clientset kubernetes.Interface
	usage     NodeUsageLister
}

func NewKubernetesUtilization(clientset kubernetes.Interface, usage NodeUsageLister) *KubernetesUtilization {
	return &KubernetesUtilization{clientset: clientset, usage: usage}
}

func (k *KubernetesUtilization) Name() string {
	return "metrics-server"
}

func (k *KubernetesUtilization) CPUUtilization(ctx context.Context, _ string, nodeName string) (models.CPUStats, error) {
	node, err := k.clientset.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		return models.CPUStats{}, wrapErr(k.Name(), "get node "+nodeName, err)
	}
	usage, err := k.usage.NodeUsage(ctx)
	if err != nil {
		return models.CPUStats{}, wrapErr(k.Name(), "node usage", err)
	}
	u, ok := usage[nodeName]
	if !ok {
		return models.CPUStats{}, nil
	}
	pct := percentOf(u, node.Status.Allocatable, corev1.ResourceCPU)
	if pct == nil {
		return models.CPUStats{}, nil
	}
	current := *pct
	return models.CPUStats{Avg: &current, Max: &current}, nil
}
