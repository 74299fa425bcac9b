package notifications

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"habitpulse/internal/types"
)

// Metrics records delivery telemetry. Failures to publish are logged and
// never surface to callers.
type Metrics interface {
	RecordBroadcast(ctx context.Context, trigger types.DeliveryTrigger, sent, failed int)
	RecordScheduleFailure(ctx context.Context)
	RecordTasksRelayed(ctx context.Context, n int)
}

// NopMetrics discards everything. It also satisfies core.MetricsCollector.
type NopMetrics struct{}

func (NopMetrics) RecordBroadcast(context.Context, types.DeliveryTrigger, int, int) {}
func (NopMetrics) RecordScheduleFailure(context.Context)                             {}
func (NopMetrics) RecordTasksRelayed(context.Context, int)                           {}
func (NopMetrics) RecordRequest(string, string, string, time.Duration)               {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes to a CloudWatch namespace.
//
// Metrics emitted:
//   - PushSent / PushFailed: Dims {Trigger} -- per broadcast
//   - DeliveryRun: Dims {Trigger} -- one per broadcast
//   - ScheduleFailure: no dims -- task creation failed
//   - TasksRelayed: no dims -- tasks handed to the delivery queue
//   - APILatency: Dims {Endpoint, Status} -- one per HTTP request
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordBroadcast(ctx context.Context, trigger types.DeliveryTrigger, sent, failed int) {
	dims := []cwtypes.Dimension{{Name: aws.String(types.DimTrigger), Value: aws.String(string(trigger))}}
	m.put(ctx,
		count(types.MetricDeliveryRun, 1, dims),
		count(types.MetricPushSent, float64(sent), dims),
		count(types.MetricPushFailed, float64(failed), dims),
	)
}

func (m *CloudWatchMetrics) RecordScheduleFailure(ctx context.Context) {
	m.put(ctx, count(types.MetricScheduleFailure, 1, nil))
}

func (m *CloudWatchMetrics) RecordTasksRelayed(ctx context.Context, n int) {
	m.put(ctx, count(types.MetricTasksRelayed, float64(n), nil))
}

// RecordRequest satisfies core.MetricsCollector. endpoint should be a
// route pattern, not a raw path.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.put(context.Background(), cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEndpoint), Value: aws.String(method + " " + endpoint)},
			{Name: aws.String(types.DimStatus), Value: aws.String(status)},
		},
	})
}

func count(name string, value float64, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

func (m *CloudWatchMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metrics",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
		)
	}
}
