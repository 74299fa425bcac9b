// Package scheduler implements the periodic jobs of the reminder service:
// the maintenance tasks routed by the scheduler multiplexer and the
// polling runtime that fires reminders without the task queue.
//
// The MaintenancePayload is the JSON structure sent by EventBridge rules to
// the scheduler function. The TaskType determines which service method
// handles the request.
package scheduler

import "time"

// TaskType identifies which maintenance service should handle an EventBridge event.
type TaskType string

const (
	TaskRelayDueTasks      TaskType = "relay_due_tasks"
	TaskReconcileSchedules TaskType = "reconcile_schedules"
	TaskPruneDeliveryLog   TaskType = "prune_delivery_log"
)

// MaintenancePayload is the JSON payload sent by EventBridge:
//
//	{
//	  "task": "relay_due_tasks",
//	  "reference_time": "2024-01-03T04:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual runs. If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
