package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// DefaultConcurrency is the number of tasks a worker processes at once.
const DefaultConcurrency = 10

// WorkerConfig configures a [Worker].
type WorkerConfig struct {
	Concurrency int
	Queues      map[string]int
}

// Worker runs asynq handlers for registered task names.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker builds a worker on the broker at opt. Zero config values use
// [DefaultConcurrency] and [DefaultQueues].
func NewWorker(opt asynq.RedisConnOpt, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = DefaultQueues
	}
	log := logger.With("component", "worker")

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retry, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.ErrorContext(ctx, "tasks: task failed",
				"task_type", task.Type(),
				"retry", retry,
				"max_retry", maxRetry,
				"error", err,
			)
		}),
	})
	return &Worker{server: server, mux: asynq.NewServeMux(), logger: log}
}

// Handle registers h for a task name. Call before Start or Run.
func (w *Worker) Handle(taskType string, h asynq.Handler) {
	w.mux.Handle(taskType, h)
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	w.logger.Info("tasks: worker starting")
	return w.server.Start(w.mux)
}

// Run processes tasks until the process receives SIGTERM or SIGINT.
func (w *Worker) Run() error {
	w.logger.Info("tasks: worker running")
	return w.server.Run(w.mux)
}

// Shutdown stops fetching tasks and waits for running handlers.
func (w *Worker) Shutdown() {
	w.logger.Info("tasks: worker shutting down")
	w.server.Shutdown()
}

// SMSDeliverer delivers one login code. otp.Sender implementations
// satisfy it.
type SMSDeliverer interface {
	Send(ctx context.Context, phone, code string) error
}

// SMSDeliverHandler processes [TypeSMSDeliver] tasks by passing the code
// to a delivery sender.
type SMSDeliverHandler struct {
	sender SMSDeliverer
	logger *slog.Logger
}

// NewSMSDeliverHandler returns a handler that delivers through sender.
func NewSMSDeliverHandler(sender SMSDeliverer, logger *slog.Logger) *SMSDeliverHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSDeliverHandler{sender: sender, logger: logger}
}

// ProcessTask implements asynq.Handler. Undecodable payloads are not
// retried; delivery failures are.
func (h *SMSDeliverHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SMSDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.ErrorContext(ctx, "tasks: failed to decode sms payload", "error", err)
		return fmt.Errorf("tasks: decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if payload.Phone == "" || payload.Code == "" {
		return fmt.Errorf("tasks: %s payload missing phone or code: %w", t.Type(), asynq.SkipRetry)
	}
	if err := h.sender.Send(ctx, payload.Phone, payload.Code); err != nil {
		return fmt.Errorf("tasks: deliver sms: %w", err)
	}
	return nil
}
