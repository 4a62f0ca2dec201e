package pricing

import (
	"context"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Cloud names reported by DetectCloud
const (
	CloudAWS     = "aws"
	CloudAzure   = "azure"
	CloudGCP     = "gcp"
	CloudUnknown = "default"
)

// DetectCloud attempts to detect the cloud hosting a cluster from node labels.
// It returns the cloud and the region of the first node.
func DetectCloud(ctx context.Context, clientset kubernetes.Interface) (string, string, error) {
	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return CloudUnknown, "unknown", err
	}

	if len(nodes.Items) == 0 {
		return CloudUnknown, "unknown", nil
	}

	node := nodes.Items[0]
	labels := node.Labels

	// Check provider ID first
	if providerID := node.Spec.ProviderID; providerID != "" {
		switch {
		case strings.HasPrefix(providerID, "aws://"):
			return CloudAWS, nodeRegion(labels, "us-east-1"), nil
		case strings.HasPrefix(providerID, "azure://"):
			return CloudAzure, nodeRegion(labels, "eastus"), nil
		case strings.HasPrefix(providerID, "gce://"):
			return CloudGCP, nodeRegion(labels, "us-central1"), nil
		}
	}

	// Check common labels
	if _, exists := labels["eks.amazonaws.com/nodegroup"]; exists {
		return CloudAWS, nodeRegion(labels, "us-east-1"), nil
	}
	if _, exists := labels["kubernetes.azure.com/cluster"]; exists {
		return CloudAzure, nodeRegion(labels, "eastus"), nil
	}
	if _, exists := labels["cloud.google.com/gke-nodepool"]; exists {
		return CloudGCP, nodeRegion(labels, "us-central1"), nil
	}

	return CloudUnknown, "unknown", nil
}

func nodeRegion(labels map[string]string, fallback string) string {
	if region, exists := labels["topology.kubernetes.io/region"]; exists {
		return region
	}
	if region, exists := labels["failure-domain.beta.kubernetes.io/region"]; exists {
		return region
	}
	return fallback
}
