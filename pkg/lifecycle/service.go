package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

const tracerName = "github.com/StricklySoft/learnhub-auth/pkg/lifecycle"

// checkStatusFailed is reported for a failing check. The cause is only
// logged.
const checkStatusFailed = "unavailable"

// StateChangeHandler observes transitions. Handlers run synchronously
// under the state mutex and must not call back into the Service. A
// panicking handler is recovered and logged.
type StateChangeHandler func(old, new State)

// Hook runs during Start or Stop. A non-nil error moves the service to
// [StateFailed].
type Hook func(ctx context.Context) error

// Info is a point-in-time snapshot of a Service.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service is the lifecycle of one process. It is safe for concurrent
// use. Build one with [NewBuilder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger

	onStart       []Hook
	onStop        []Hook
	checks        []Check
	checkTimeout  time.Duration
	stateHandlers []StateChangeHandler
}

func (s *Service) Name() string {
	return s.name
}

func (s *Service) Version() string {
	return s.version
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot; Uptime is zero unless the service is running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// SetState validates and applies one transition, then notifies the
// state change handlers. Invalid transitions return
// [sserr.CodeConflict].
func (s *Service) SetState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, new)
	}
	s.state = new

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(new),
					)
				}
			}()
			h(old, new)
		}()
	}
	return nil
}

// Start moves the service through Starting to Running, running the
// OnStart hooks in registration order. A failing hook leaves the
// service Failed and returns [sserr.CodeInternal].
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		recordError(span, err)
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution")
	}
	if err := s.SetState(StateStarting); err != nil {
		recordError(span, err)
		return err
	}

	s.logger.InfoContext(ctx, "lifecycle: starting service",
		"service", s.name,
		"version", s.version,
	)

	for _, hook := range s.onStart {
		if err := hook(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.SetState(StateFailed)
			recordError(span, err)
			return sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed")
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		recordError(span, err)
		return err
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop moves the service through Stopping to Stopped, running the OnStop
// hooks in reverse registration order. Every hook runs even when an
// earlier one fails; the first error is returned and the service ends
// Failed. Stop on a terminal state is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		recordError(span, err)
		return err
	}

	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	var firstErr error
	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed",
				"service", s.name,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		_ = s.SetState(StateFailed)
		recordError(span, firstErr)
		return sserr.Wrap(firstErr, sserr.CodeInternal, "lifecycle: stop hook failed")
	}

	if err := s.SetState(StateStopped); err != nil {
		recordError(span, err)
		return err
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Health runs every registered check concurrently, each bounded by the
// check timeout, and returns the report. The error is non-nil with
// [sserr.CodeUnavailable] when the service is not running or any check
// failed.
func (s *Service) Health(ctx context.Context) (HealthReport, error) {
	report := HealthReport{State: s.State()}
	if len(s.checks) > 0 {
		report.Checks = make(map[string]string, len(s.checks))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, s.checkTimeout)
			defer cancel()

			status := CheckStatusOK
			if err := c.Func(checkCtx); err != nil {
				s.logger.WarnContext(ctx, "lifecycle: health check failed",
					"service", s.name,
					"check", c.Name,
					"error", err,
				)
				status = checkStatusFailed
			}
			mu.Lock()
			report.Checks[c.Name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if report.State != StateRunning {
		return report, sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", report.State)
	}
	if !report.Healthy() {
		return report, sserr.New(sserr.CodeUnavailableDependency,
			"lifecycle: dependency check failed")
	}
	return report, nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
