// Package tasks dispatches background work through asynq and runs the
// worker that processes it.
//
// Task names are stable strings ("sms:deliver"); payloads are JSON. The
// dispatcher routes each task name to a queue so the worker can weight
// queues independently.
package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// Task names.
const (
	TypeSMSDeliver = "sms:deliver"
)

// Queue names.
const (
	QueueDefault = "default"
	QueueSMS     = "sms"
)

// DefaultRoutes maps task names to queues. Unrouted tasks use
// [QueueDefault].
var DefaultRoutes = map[string]string{
	TypeSMSDeliver: QueueSMS,
}

// DefaultQueues is the worker's queue priority table.
var DefaultQueues = map[string]int{
	QueueSMS:     6,
	QueueDefault: 3,
}

// SMSDeliverPayload carries one login code to the delivery worker.
type SMSDeliverPayload struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// NewTask encodes payload as JSON under the task name.
func NewTask(name string, payload any) (*asynq.Task, error) {
	if name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "tasks: task name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeValidation, "tasks: failed to encode payload for %q", name)
	}
	return asynq.NewTask(name, data), nil
}
