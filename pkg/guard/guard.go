package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/callguard/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrAttemptTimeout marks an attempt that did not settle within Policy.Timeout.
	ErrAttemptTimeout = errors.New("attempt timed out")
	// ErrPanic marks an operation that panicked.
	ErrPanic = errors.New("operation panicked")
)

// Operation is the guarded work. It should stop when ctx is cancelled;
// the guard signals cancellation but cannot force an operation to stop.
type Operation[T any] func(ctx context.Context) (T, error)

// DiagnosticSink receives one record per exhausted invocation.
type DiagnosticSink interface {
	Record(ctx context.Context, f Failure) error
}

// Observer receives attempt and outcome measurements.
type Observer interface {
	ObserveAttempt(operation string, d time.Duration, err error)
	ObserveOutcome(operation string, outcome Outcome, attempts int)
	ObserveNotification(operation string, kind Kind)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, time.Duration, error) {}
func (nopObserver) ObserveOutcome(string, Outcome, int)         {}
func (nopObserver) ObserveNotification(string, Kind)            {}

// Guard runs operations on behalf of one Scope.
type Guard struct {
	scope       *Scope
	notifier    Notifier
	localizer   *Localizer
	diagnostics DiagnosticSink
	observer    Observer
	tracer      trace.Tracer
	logger      *logging.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithNotifier sets the user notification sink.
func WithNotifier(n Notifier) Option {
	return func(g *Guard) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithLocalizer sets the message catalog used for notifications.
func WithLocalizer(l *Localizer) Option {
	return func(g *Guard) {
		if l != nil {
			g.localizer = l
		}
	}
}

// WithDiagnostics sets the sink that records exhausted invocations.
func WithDiagnostics(d DiagnosticSink) Option {
	return func(g *Guard) { g.diagnostics = d }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(g *Guard) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithTracer sets the tracer used for invocation spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithLogger sets the guard's logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithSleep replaces the inter-retry wait. fn must return ctx.Err() when ctx
// is cancelled before d elapses.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Guard) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

// WithClock replaces time.Now for failure timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a guard bound to scope.
func New(scope *Scope, opts ...Option) *Guard {
	g := &Guard{
		scope:     scope,
		notifier:  nopNotifier{},
		localizer: NewLocalizer(),
		observer:  nopObserver{},
		tracer:    noop.NewTracerProvider().Tracer("callguard"),
		logger:    scope.Logger(),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithField("component", "guard")
	return g
}

// Scope returns the scope the guard is bound to.
func (g *Guard) Scope() *Scope { return g.scope }

// Localizer returns the guard's message catalog.
func (g *Guard) Localizer() *Localizer { return g.localizer }

// CallOption configures one invocation.
type CallOption[T any] func(*call[T])

type call[T any] struct {
	fallback T
	onError  func(error)
	recovery Recovery
}

// WithFallback sets the value returned when no result can be delivered.
func WithFallback[T any](v T) CallOption[T] {
	return func(c *call[T]) { c.fallback = v }
}

// WithOnError sets a callback invoked once with the last error when the
// invocation is exhausted while the scope is alive.
func WithOnError[T any](fn func(error)) CallOption[T] {
	return func(c *call[T]) { c.onError = fn }
}

// WithRecovery opts the invocation into an escalation run after exhaustion.
func WithRecovery[T any](r Recovery) CallOption[T] {
	return func(c *call[T]) { c.recovery = r }
}

// Run executes op under policy. It never returns an error or panics on
// behalf of op: failures end up in the Result, the OnError callback, one
// notification and the diagnostic sink. Cancelling ctx abandons the call
// just like tearing down the scope.
func Run[T any](ctx context.Context, g *Guard, policy Policy, op Operation[T], opts ...CallOption[T]) Result[T] {
	var c call[T]
	for _, opt := range opts {
		opt(&c)
	}
	start := time.Now()
	res := Result[T]{Value: c.fallback}

	if err := policy.Validate(); err != nil {
		g.logger.Error("refusing to run with invalid policy", logging.Fields{"operation": policy.Name, "error": err})
		res.Outcome = Exhausted
		res.Err = err
		return res
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := g.tracer.Start(ctx, "guard.run", trace.WithAttributes(
		attribute.String("guard.operation", policy.Name),
		attribute.Int("guard.max_attempts", policy.MaxAttempts()),
		attribute.Int64("guard.timeout_ms", policy.Timeout.Milliseconds()),
	))
	defer span.End()

	tok := g.scope.acquire(ctx, policy.SingleFlight)
	defer g.scope.release(tok)

	finish := func(outcome Outcome, err error) Result[T] {
		res.Outcome = outcome
		res.Err = err
		res.Elapsed = time.Since(start)
		g.observer.ObserveOutcome(policy.Name, outcome, res.Attempts)
		span.SetAttributes(
			attribute.String("guard.outcome", outcome.String()),
			attribute.Int("guard.attempts", res.Attempts),
		)
		if outcome == Abandoned {
			g.logger.Debug("discarding guarded call for torn-down owner", logging.Fields{
				"operation": policy.Name,
				"attempts":  res.Attempts,
			})
		}
		return res
	}

	var lastErr error
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if !g.scope.Alive() || tok.cancelled() {
			return finish(Abandoned, lastErr)
		}

		res.Attempts++
		attemptStart := time.Now()
		value, err := runAttempt(tok.ctx, policy.Timeout, op)
		g.observer.ObserveAttempt(policy.Name, time.Since(attemptStart), err)

		if !g.scope.Alive() {
			return finish(Abandoned, err)
		}
		if err == nil {
			res.Value = value
			span.SetStatus(otelcodes.Ok, "")
			return finish(Success, nil)
		}

		lastErr = err
		kind := Classify(err)
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("guard.attempt", attempt+1),
			attribute.String("guard.kind", kind.String()),
		))
		if tok.cancelled() {
			return finish(Abandoned, err)
		}
		if !kind.Retryable() || attempt == policy.Retries {
			break
		}

		g.logger.Debug("retrying guarded call", logging.Fields{
			"operation": policy.Name,
			"attempt":   attempt + 1,
			"kind":      kind.String(),
			"delay":     policy.RetryDelay.String(),
		})
		if err := g.sleep(tok.ctx, policy.RetryDelay); err != nil {
			return finish(Abandoned, lastErr)
		}
	}

	if !g.scope.Alive() {
		return finish(Abandoned, lastErr)
	}

	span.RecordError(lastErr)
	span.SetStatus(otelcodes.Error, lastErr.Error())
	g.report(ctx, policy, res.Attempts, lastErr, c.onError, c.recovery)
	return finish(Exhausted, lastErr)
}

// report surfaces an exhausted invocation exactly once.
func (g *Guard) report(ctx context.Context, policy Policy, attempts int, err error, onError func(error), recovery Recovery) {
	kind := Classify(err)
	failure := Failure{
		ID:        uuid.NewString(),
		Operation: policy.Name,
		Kind:      kind,
		Message:   g.localizer.Message(kind),
		Err:       err,
		Attempts:  attempts,
		Outcome:   Exhausted,
		Time:      g.now(),
	}

	g.logger.Error("guarded operation failed", logging.Fields{
		"operation": failure.Operation,
		"error":     err,
		"kind":      kind.String(),
		"attempts":  attempts,
		"timestamp": failure.Time.Format(time.RFC3339Nano),
	})

	if g.diagnostics != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if derr := g.diagnostics.Record(dctx, failure); derr != nil {
			g.logger.Warn("failed to record diagnostic", logging.Fields{"operation": failure.Operation, "error": derr})
		}
		cancel()
	}

	if onError != nil {
		safely(g.logger, "onError callback", func() { onError(err) })
	}

	if policy.ShowErrorToast {
		g.observer.ObserveNotification(policy.Name, kind)
		safely(g.logger, "notifier", func() {
			g.notifier.Notify(ctx, Notification{
				Operation: policy.Name,
				Kind:      kind,
				Message:   failure.Message,
				Time:      failure.Time,
			})
		})
	}

	if recovery != nil {
		safely(g.logger, "recovery "+recovery.Name(), func() {
			if rerr := recovery.Recover(g.scope.Context(), failure); rerr != nil {
				g.logger.Warn("recovery failed", logging.Fields{"operation": failure.Operation, "recovery": recovery.Name(), "error": rerr})
			}
		})
	}
}

// runAttempt runs op once with a timeout. If op settles before the timer
// fires its result is returned even when both are ready.
func runAttempt[T any](parent context.Context, timeout time.Duration, op Operation[T]) (T, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type settled struct {
		value T
		err   error
	}
	done := make(chan settled, 1)
	go func() {
		var s settled
		defer func() {
			if r := recover(); r != nil {
				s = settled{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
			done <- s
		}()
		s.value, s.err = op(ctx)
	}()

	select {
	case s := <-done:
		return s.value, attemptError(parent, ctx, timeout, s.err)
	case <-ctx.Done():
		select {
		case s := <-done:
			return s.value, attemptError(parent, ctx, timeout, s.err)
		default:
		}
		var zero T
		return zero, attemptError(parent, ctx, timeout, ctx.Err())
	}
}

// attemptError tags failures caused by the attempt's own deadline.
func attemptError(parent, attempt context.Context, timeout time.Duration, err error) error {
	if err == nil || parent.Err() != nil {
		return err
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
		}
		return fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, timeout, err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func safely(logger *logging.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn(what+" panicked", logging.Fields{"panic": fmt.Sprint(r)})
		}
	}()
	fn()
}
