package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatusSweep persists derived invoice, quotation and expense statuses.
	TaskStatusSweep = "status:sweep"
	// TaskReportsWarmup pre-builds the current month and year reports.
	TaskReportsWarmup = "reports:warmup"
)

// StatusSweepPayload selects which ledgers a sweep touches. An empty Kinds
// sweeps everything.
type StatusSweepPayload struct {
	Kinds            []string `json:"kinds,omitempty"`
	IdempotencyHours int      `json:"idempotency_hours,omitempty"`
}

// ReportsWarmupPayload carries the trigger source for logging.
type ReportsWarmupPayload struct {
	Source string `json:"source,omitempty"`
}

// NewStatusSweepTask constructs a sweep task.
func NewStatusSweepTask(payload StatusSweepPayload) (*asynq.Task, error) {
	for _, kind := range payload.Kinds {
		if !validKind(kind) {
			return nil, fmt.Errorf("status sweep: unknown kind %q", kind)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatusSweep, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewReportsWarmupTask constructs a warmup task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// Schedule builds the periodic registrations for the worker. Empty specs
// disable the matching entry.
func Schedule(sweepSpec, warmupSpec string) ([]CronRegistration, error) {
	var out []CronRegistration
	if sweepSpec != "" {
		task, err := NewStatusSweepTask(StatusSweepPayload{})
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: sweepSpec, Task: task})
	}
	if warmupSpec != "" {
		task, err := NewReportsWarmupTask(ReportsWarmupPayload{Source: "cron"})
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: warmupSpec, Task: task})
	}
	return out, nil
}
