// Package jobs defines the background task types and the Asynq worker that
// processes them: customer notifications for submitted documents, sensor
// threshold alerts and the nightly dashboard warmup.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyDispatch notifies a customer about a submitted dispatch.
	TaskNotifyDispatch = "notify:dispatch"
	// TaskNotifyReceipt notifies a customer about a submitted receipt.
	TaskNotifyReceipt = "notify:receipt"
	// TaskSensorAlert fans out a cold-room threshold breach.
	TaskSensorAlert = "sensors:alert"
	// TaskDashboardWarmup recomputes the cached dashboard summary.
	TaskDashboardWarmup = "reports:dashboard-warmup"
)

// NotifyDispatchPayload carries what the customer message needs.
type NotifyDispatchPayload struct {
	DispatchCode string    `json:"dispatch_code"`
	Customer     string    `json:"customer"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	DispatchDate time.Time `json:"dispatch_date"`
	GrandTotal   string    `json:"grand_total"`
	TotalBags    float64   `json:"total_bags"`
}

// NotifyReceiptPayload carries what the customer message needs.
type NotifyReceiptPayload struct {
	ReceiptCode string    `json:"receipt_code"`
	Customer    string    `json:"customer"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	ReceiptDate time.Time `json:"receipt_date"`
	TotalBags   float64   `json:"total_bags"`
}

// SensorAlertPayload describes a threshold breach on a cold-room sensor.
type SensorAlertPayload struct {
	SensorID  string    `json:"sensor_id"`
	Warehouse string    `json:"warehouse"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Phone     string    `json:"phone,omitempty"`
	At        time.Time `json:"at"`
}

// NewNotifyDispatchTask constructs an Asynq task.
func NewNotifyDispatchTask(payload NotifyDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDispatch, data), nil
}

// NewNotifyReceiptTask constructs an Asynq task.
func NewNotifyReceiptTask(payload NotifyReceiptPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyReceipt, data), nil
}

// NewSensorAlertTask constructs an Asynq task.
func NewSensorAlertTask(payload SensorAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSensorAlert, data), nil
}

// NewDashboardWarmupTask constructs the cron warmup task.
func NewDashboardWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDashboardWarmup, nil)
}
