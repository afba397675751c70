package app

import (
	"context"
	"log/slog"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/otp"
	"github.com/StricklySoft/learnhub-auth/pkg/tasks"
)

// NewWorker builds the background worker with every task handler
// registered. Queued SMS codes are delivered through the log sender.
func NewWorker(cfg Config, logger *slog.Logger) (*tasks.Worker, error) {
	opt, err := tasks.RedisOpt(cfg.Redis)
	if err != nil {
		return nil, err
	}
	w := tasks.NewWorker(opt, tasks.WorkerConfig{Concurrency: cfg.WorkerConcurrency}, logger)
	w.Handle(tasks.TypeSMSDeliver, tasks.NewSMSDeliverHandler(otp.NewLogSender(logger), logger))
	return w, nil
}

// RunWorker processes tasks until ctx is canceled.
func RunWorker(ctx context.Context, cfg Config, logger *slog.Logger) error {
	w, err := NewWorker(cfg, logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "app: worker failed to start")
	}
	<-ctx.Done()
	w.Shutdown()
	return nil
}
