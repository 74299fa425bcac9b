package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	MetricPushSent        = "PushSent"
	MetricPushFailed      = "PushFailed"
	MetricDeliveryRun     = "DeliveryRun"
	MetricScheduleFailure = "ScheduleFailure"
	MetricTasksRelayed    = "TasksRelayed"
	MetricAPILatency      = "APILatency"

	DimTrigger  = "Trigger"
	DimStatus   = "Status"
	DimEndpoint = "Endpoint"

	MetricNamespace = "HabitPulse"
)
