package lifecycle

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// DefaultCheckTimeout bounds each dependency check in [Service.Health].
const DefaultCheckTimeout = 2 * time.Second

// Builder configures a [Service].
//
//	svc, err := lifecycle.NewBuilder("learnhub-api", version).
//	    WithLogger(logger).
//	    WithCheck("postgres", db.Health).
//	    WithCheck("redis", rdb.Health).
//	    OnStop(func(ctx context.Context) error { return srv.Shutdown(ctx) }).
//	    Build()
type Builder struct {
	name          string
	version       string
	logger        *slog.Logger
	onStart       []Hook
	onStop        []Hook
	checks        []Check
	checkTimeout  time.Duration
	stateHandlers []StateChangeHandler
	err           error
}

func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version}
}

// WithLogger sets the logger; [slog.Default] otherwise.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// OnStart appends a hook run by [Service.Start].
func (b *Builder) OnStart(hook Hook) *Builder {
	if hook != nil {
		b.onStart = append(b.onStart, hook)
	}
	return b
}

// OnStop appends a hook run by [Service.Stop]. Stop hooks run in reverse
// order, so resources opened first are closed last.
func (b *Builder) OnStop(hook Hook) *Builder {
	if hook != nil {
		b.onStop = append(b.onStop, hook)
	}
	return b
}

// WithCheck registers a dependency check. An invalid check is reported
// by Build.
func (b *Builder) WithCheck(name string, fn CheckFunc) *Builder {
	c, err := NewCheck(name, fn)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.checks = append(b.checks, c)
	return b
}

// WithCheckTimeout overrides [DefaultCheckTimeout].
func (b *Builder) WithCheckTimeout(d time.Duration) *Builder {
	b.checkTimeout = d
	return b
}

// OnStateChange registers an observer called on every transition.
func (b *Builder) OnStateChange(handler StateChangeHandler) *Builder {
	b.stateHandlers = append(b.stateHandlers, handler)
	return b
}

// Build returns [sserr.CodeValidation] when the name or version is empty
// or a check was invalid. The service starts in [StateUnknown].
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service version must not be empty")
	}
	if b.err != nil {
		return nil, sserr.Wrap(b.err, sserr.CodeValidation, "lifecycle: invalid health check")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := b.checkTimeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	return &Service{
		name:          b.name,
		version:       b.version,
		state:         StateUnknown,
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
		onStart:       append([]Hook(nil), b.onStart...),
		onStop:        append([]Hook(nil), b.onStop...),
		checks:        append([]Check(nil), b.checks...),
		checkTimeout:  timeout,
		stateHandlers: append([]StateChangeHandler(nil), b.stateHandlers...),
	}, nil
}
