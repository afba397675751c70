package otp

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/StricklySoft/learnhub-auth/pkg/tasks"
)

// Sender delivers a code to a phone.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of sending them. Development
// and test deployments use it; it must not be used where logs leave the
// host.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, phone, code string) error {
	s.logger.InfoContext(ctx, "mock sms send", "phone", phone, "code", code)
	return nil
}

// TaskEnqueuer is the part of *tasks.Dispatcher the TaskSender uses.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...asynq.Option) error
}

var _ TaskEnqueuer = (*tasks.Dispatcher)(nil)

// DefaultDeliveryRetries is how often a queued delivery is retried.
const DefaultDeliveryRetries = 3

// TaskSender hands codes to the background worker as
// [tasks.TypeSMSDeliver] tasks. The worker passes them to the real
// delivery Sender.
type TaskSender struct {
	dispatcher TaskEnqueuer
}

// NewTaskSender returns a TaskSender enqueuing through dispatcher.
func NewTaskSender(dispatcher TaskEnqueuer) *TaskSender {
	return &TaskSender{dispatcher: dispatcher}
}

func (s *TaskSender) Send(ctx context.Context, phone, code string) error {
	return s.dispatcher.Enqueue(ctx, tasks.TypeSMSDeliver,
		tasks.SMSDeliverPayload{Phone: phone, Code: code},
		asynq.MaxRetry(DefaultDeliveryRetries),
	)
}

var (
	_ Sender             = (*LogSender)(nil)
	_ Sender             = (*TaskSender)(nil)
	_ tasks.SMSDeliverer = (Sender)(nil)
)
