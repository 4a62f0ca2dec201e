package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEC2 struct {
	region string
	pages  []*ec2.DescribeInstancesOutput
	calls  int
	err    error
}

func (f *fakeEC2) DescribeInstances(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.pages[f.calls]
	f.calls++
	return out, nil
}

func ec2Instance(id, name string, state ec2types.InstanceStateName) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:   aws.String(id),
		InstanceType: ec2types.InstanceTypeT3Medium,
		State:        &ec2types.InstanceState{Name: state},
		Tags:         []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}},
	}
}

func TestEC2InventoryPaginates(t *testing.T) {
	fake := &fakeEC2{pages: []*ec2.DescribeInstancesOutput{
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
				ec2Instance("i-1", "web", ec2types.InstanceStateNameRunning),
			}}},
			NextToken: aws.String("next"),
		},
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
				ec2Instance("i-2", "batch", ec2types.InstanceStateNameStopped),
			}}},
		},
	}}

	inv := NewEC2Inventory(func(string) ec2.DescribeInstancesAPIClient { return fake }, []string{"us-east-1"}, nil, nil)
	instances, err := inv.ListInstances(context.Background(), "us-east-1")
	require.NoError(t, err)

	require.Len(t, instances, 2)
	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, "i-1", instances[0].InstanceID)
	assert.Equal(t, "web", instances[0].Name)
	assert.Equal(t, "us-east-1", instances[0].Region)
	assert.Equal(t, "stopped", instances[1].State)
}

func TestEC2InventoryAllRegions(t *testing.T) {
	clients := map[string]*fakeEC2{
		"us-east-1": {pages: []*ec2.DescribeInstancesOutput{{Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
			ec2Instance("i-east", "a", ec2types.InstanceStateNameRunning),
		}}}}}},
		"eu-west-1": {pages: []*ec2.DescribeInstancesOutput{{Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
			ec2Instance("i-eu", "b", ec2types.InstanceStateNameRunning),
		}}}}}},
	}
	factory := func(region string) ec2.DescribeInstancesAPIClient { return clients[region] }

	inv := NewEC2Inventory(factory, []string{"us-east-1", "eu-west-1"}, nil, nil)
	instances, err := inv.ListInstances(context.Background(), RegionAll)
	require.NoError(t, err)

	require.Len(t, instances, 2)
	assert.Equal(t, "us-east-1", instances[0].Region)
	assert.Equal(t, "eu-west-1", instances[1].Region)
}

func TestEC2InventoryError(t *testing.T) {
	cause := errors.New("UnauthorizedOperation")
	inv := NewEC2Inventory(func(string) ec2.DescribeInstancesAPIClient { return &fakeEC2{err: cause} }, nil, nil, nil)

	_, err := inv.ListInstances(context.Background(), "us-east-1")
	assert.ErrorIs(t, err, cause)
}

type fakeCloudWatch struct {
	out   *cloudwatch.GetMetricStatisticsOutput
	err   error
	input *cloudwatch.GetMetricStatisticsInput
}

func (f *fakeCloudWatch) GetMetricStatistics(_ context.Context, in *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestCloudWatchCPUStats(t *testing.T) {
	fake := &fakeCloudWatch{out: &cloudwatch.GetMetricStatisticsOutput{Datapoints: []cwtypes.Datapoint{
		{Average: aws.Float64(10), Maximum: aws.Float64(30)},
		{Average: aws.Float64(20), Maximum: aws.Float64(80)},
		{Average: aws.Float64(30), Maximum: aws.Float64(50)},
	}}}
	now := time.Date(2024, 1, 22, 12, 0, 0, 0, time.UTC)

	cw := NewCloudWatchUtilization(func(string) CloudWatchAPI { return fake }, 0, nil)
	cw.now = func() time.Time { return now }

	stats, err := cw.CPUUtilization(context.Background(), "us-east-1", "i-1")
	require.NoError(t, err)

	require.NotNil(t, stats.Avg)
	require.NotNil(t, stats.Max)
	assert.InDelta(t, 20, *stats.Avg, 1e-9)
	assert.InDelta(t, 80, *stats.Max, 1e-9)

	assert.Equal(t, "AWS/EC2", aws.ToString(fake.input.Namespace))
	assert.Equal(t, "CPUUtilization", aws.ToString(fake.input.MetricName))
	assert.Equal(t, "i-1", aws.ToString(fake.input.Dimensions[0].Value))
	assert.Equal(t, int32(300), aws.ToInt32(fake.input.Period))
	assert.Equal(t, now.Add(-24*time.Hour), aws.ToTime(fake.input.StartTime))
}

func TestCloudWatchNoDatapoints(t *testing.T) {
	fake := &fakeCloudWatch{out: &cloudwatch.GetMetricStatisticsOutput{}}
	cw := NewCloudWatchUtilization(func(string) CloudWatchAPI { return fake }, 5, nil)

	stats, err := cw.CPUUtilization(context.Background(), "us-east-1", "i-1")
	require.NoError(t, err)
	assert.Nil(t, stats.Avg)
	assert.Nil(t, stats.Max)
}

func TestCloudWatchError(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("boom")}
	cw := NewCloudWatchUtilization(func(string) CloudWatchAPI { return fake }, 0, nil)

	_, err := cw.CPUUtilization(context.Background(), "us-east-1", "i-1")
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "cloudwatch", srcErr.Source)
}
