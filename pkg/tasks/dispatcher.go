package tasks

import (
	"context"
	"log/slog"
	"maps"

	"github.com/hibiken/asynq"

	redisclient "github.com/StricklySoft/learnhub-auth/pkg/clients/redis"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// Enqueuer is the subset of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

var _ Enqueuer = (*asynq.Client)(nil)

// Dispatcher enqueues named tasks. It is safe for concurrent use.
type Dispatcher struct {
	client Enqueuer
	routes map[string]string
	logger *slog.Logger
}

// NewDispatcher wraps client. routes overrides [DefaultRoutes] when
// non-nil; a nil logger uses slog.Default().
func NewDispatcher(client Enqueuer, routes map[string]string, logger *slog.Logger) *Dispatcher {
	if routes == nil {
		routes = DefaultRoutes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: client, routes: maps.Clone(routes), logger: logger}
}

// NewRedisDispatcher opens an asynq client on the Redis described by cfg.
func NewRedisDispatcher(cfg redisclient.Config, logger *slog.Logger) (*Dispatcher, error) {
	opt, err := RedisOpt(cfg)
	if err != nil {
		return nil, err
	}
	return NewDispatcher(asynq.NewClient(opt), nil, logger), nil
}

// Enqueue encodes payload and enqueues it under name on the routed
// queue. opts are applied after the queue option, so a caller-supplied
// asynq.Queue wins.
//
// Error codes returned:
//   - [sserr.CodeValidation]: payload could not be encoded
//   - [sserr.CodeUnavailableDependency]: the broker rejected the task
func (d *Dispatcher) Enqueue(ctx context.Context, name string, payload any, opts ...asynq.Option) error {
	task, err := NewTask(name, payload)
	if err != nil {
		return err
	}
	queue := d.Queue(name)
	all := append([]asynq.Option{asynq.Queue(queue)}, opts...)

	info, err := d.client.EnqueueContext(ctx, task, all...)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailableDependency, "tasks: failed to enqueue %q", name)
	}
	d.logger.DebugContext(ctx, "tasks: enqueued",
		"task_type", name,
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}

// Queue returns the queue a task name is routed to.
func (d *Dispatcher) Queue(name string) string {
	if q, ok := d.routes[name]; ok {
		return q
	}
	return QueueDefault
}

// Close closes the underlying client.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// RedisOpt converts the shared Redis client configuration into asynq
// connection options, so the broker and the counters use one config.
func RedisOpt(cfg redisclient.Config) (asynq.RedisClientOpt, error) {
	if err := cfg.Validate(); err != nil {
		return asynq.RedisClientOpt{}, sserr.Wrap(err, sserr.CodeValidation, "tasks: invalid redis configuration")
	}
	o, err := cfg.Options()
	if err != nil {
		return asynq.RedisClientOpt{}, sserr.Wrap(err, sserr.CodeValidation, "tasks: invalid redis configuration")
	}
	return asynq.RedisClientOpt{
		Network:      o.Network,
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
		TLSConfig:    o.TLSConfig,
	}, nil
}
