package guard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psantana5/callguard/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedErr struct{ code string }

func (e *codedErr) Error() string { return "backend error: " + e.code }
func (e *codedErr) Code() string  { return e.code }

type fakeSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeSleeper) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

type memorySink struct {
	mu       sync.Mutex
	failures []Failure
}

func (m *memorySink) Record(_ context.Context, f Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

type harness struct {
	scope    *Scope
	guard    *Guard
	notes    *Recorder
	sleeper  *fakeSleeper
	sink     *memorySink
	logs     *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	logs := &syncBuffer{}
	logger := logging.NewLogger(logging.DEBUG, false)
	logger.SetOutput(logs)

	h := &harness{
		notes:   &Recorder{},
		sleeper: &fakeSleeper{},
		sink:    &memorySink{},
		logs:    logs,
	}
	h.scope = NewScope(context.Background(), t.Name(), WithScopeLogger(logger))
	t.Cleanup(h.scope.Close)

	base := []Option{
		WithNotifier(h.notes),
		WithSleep(h.sleeper.Sleep),
		WithDiagnostics(h.sink),
	}
	h.guard = New(h.scope, append(base, opts...)...)
	return h
}

func TestRunSucceedsOnFirstAttempt(t *testing.T) {
	h := newHarness(t)

	res := Run(context.Background(), h.guard, DefaultPolicy("profile.get"),
		func(ctx context.Context) (int, error) { return 42, nil },
		WithFallback(-1))

	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, 42, res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.NoError(t, res.Err)
	assert.Empty(t, h.sleeper.Waits(), "no retry delay on first-attempt success")
	assert.Equal(t, 0, h.notes.Len())
}

// Backend keeps answering "temporarily unavailable": every attempt is spent.
func TestRunExhaustsRetriesOnUnavailable(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32

	policy := DefaultPolicy("bookings.list").WithRetries(2, 1000*time.Millisecond)
	res := Run(context.Background(), h.guard, policy,
		func(ctx context.Context) ([]string, error) {
			calls.Add(1)
			return nil, &codedErr{code: "unavailable"}
		},
		WithFallback([]string{"cached"}))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, h.sleeper.Waits())
	assert.Equal(t, Exhausted, res.Outcome)
	assert.Equal(t, []string{"cached"}, res.Value)

	require.Equal(t, 1, h.notes.Len())
	note, _ := h.notes.Last()
	assert.Equal(t, KindUnavailable, note.Kind)
	assert.Equal(t, NewLocalizer().Message(KindUnavailable), note.Message)
}

// Permission failures are not retried.
func TestRunFailsFastOnPermissionDenied(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32

	policy := DefaultPolicy("profile.update").WithRetries(3, time.Second)
	res := Run(context.Background(), h.guard, policy,
		func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", &codedErr{code: "permission-denied"}
		},
		WithFallback("fallback"))

	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, h.sleeper.Waits())
	assert.Equal(t, Exhausted, res.Outcome)
	assert.Equal(t, "fallback", res.Value)

	require.Equal(t, 1, h.notes.Len())
	note, _ := h.notes.Last()
	assert.Equal(t, NewLocalizer().Message(KindPermissionDenied), note.Message)
}

// Owner torn down 5ms into an operation that would succeed at 50ms.
func TestRunAbandonsWhenScopeTornDown(t *testing.T) {
	h := newHarness(t)
	bookings := NewSafeValue(h.scope, "bookings", []string{})
	var onErrorCalls atomic.Int32

	time.AfterFunc(5*time.Millisecond, h.scope.Close)

	policy := DefaultPolicy("bookings.list").WithTimeout(10 * time.Second)
	res := Run(context.Background(), h.guard, policy,
		func(ctx context.Context) ([]string, error) {
			time.Sleep(50 * time.Millisecond)
			return []string{"b-1"}, nil
		},
		WithFallback([]string(nil)),
		WithOnError[[]string](func(error) { onErrorCalls.Add(1) }))

	assert.Equal(t, Abandoned, res.Outcome)
	assert.Nil(t, res.Value)
	assert.Equal(t, 0, h.notes.Len())
	assert.Equal(t, int32(0), onErrorCalls.Load())

	// A call site that delivers anyway hits the no-op branch.
	bookings.Set(res.Value)
	assert.Equal(t, []string{}, bookings.Get())
	assert.Contains(t, h.logs.String(), "state update skipped after teardown")
}

func TestRunTimeoutCancelsOperation(t *testing.T) {
	h := newHarness(t)
	sawCancel := make(chan error, 1)

	policy := DefaultPolicy("geocode").WithTimeout(20*time.Millisecond).WithRetries(0, 0)
	res := Run(context.Background(), h.guard, policy,
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			sawCancel <- ctx.Err()
			return "", ctx.Err()
		})

	assert.Equal(t, Exhausted, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrAttemptTimeout)
	assert.Equal(t, KindTimeout, Classify(res.Err))

	select {
	case err := <-sawCancel:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("operation never observed cancellation")
	}
}

func TestRunSuccessBeforeTimeoutWins(t *testing.T) {
	h := newHarness(t)

	policy := DefaultPolicy("profile.get").WithTimeout(200 * time.Millisecond)
	res := Run(context.Background(), h.guard, policy,
		func(ctx context.Context) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return "ok", nil
		})

	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, "ok", res.Value)
}

func TestRunRetriesAfterTimeout(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32

	policy := DefaultPolicy("bookings.list").WithTimeout(20*time.Millisecond).WithRetries(2, 10*time.Millisecond)
	res := Run(context.Background(), h.guard, policy,
		func(ctx context.Context) (int, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return 0, ctx.Err()
			}
			return 7, nil
		})

	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, 7, res.Value)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, h.sleeper.Waits(), 1)
}

func TestRunOnErrorCalledOnceWithLastError(t *testing.T) {
	h := newHarness(t)
	var got []error
	var calls int

	policy := DefaultPolicy("bookings.create").WithRetries(2, 0)
	Run(context.Background(), h.guard, policy,
		func(ctx context.Context) (bool, error) {
			calls++
			return false, errors.New("network down " + string(rune('0'+calls)))
		},
		WithOnError[bool](func(err error) { got = append(got, err) }))

	require.Len(t, got, 1)
	assert.EqualError(t, got[0], "network down 3")
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness(t)

	res := Run(context.Background(), h.guard, DefaultPolicy("render").WithRetries(0, 0),
		func(ctx context.Context) (int, error) { panic("nil map") })

	assert.Equal(t, Exhausted, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPanic)
	assert.Equal(t, KindRender, Classify(res.Err))
}

func TestRunRejectsInvalidPolicy(t *testing.T) {
	h := newHarness(t)
	called := false

	res := Run(context.Background(), h.guard, Policy{Name: "broken", Timeout: 0},
		func(ctx context.Context) (int, error) {
			called = true
			return 1, nil
		}, WithFallback(9))

	assert.False(t, called)
	assert.ErrorIs(t, res.Err, ErrInvalidPolicy)
	assert.Equal(t, 9, res.Value)
	assert.Equal(t, 0, h.notes.Len())
}

func TestRunCallerCancellationAbandons(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)

	res := Run(ctx, h.guard, DefaultPolicy("bookings.list"),
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}, WithFallback(-1))

	assert.Equal(t, Abandoned, res.Outcome)
	assert.Equal(t, -1, res.Value)
	assert.True(t, h.scope.Alive(), "caller cancellation must not tear the scope down")
	assert.Equal(t, 0, h.notes.Len())
}

func TestRunTeardownDuringRetryDelay(t *testing.T) {
	logger := logging.Discard()
	scope := NewScope(context.Background(), "retry-delay", WithScopeLogger(logger))
	notes := &Recorder{}
	g := New(scope, WithNotifier(notes))

	time.AfterFunc(10*time.Millisecond, scope.Close)

	start := time.Now()
	res := Run(context.Background(), g, DefaultPolicy("bookings.list").WithRetries(3, 5*time.Second),
		func(ctx context.Context) (int, error) { return 0, &codedErr{code: "unavailable"} })

	assert.Equal(t, Abandoned, res.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, notes.Len())
}

func TestRunSingleFlightSupersedesPrevious(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	first := make(chan Result[string], 1)

	policy := DefaultPolicy("route.resolve")
	policy.SingleFlight = true

	go func() {
		first <- Run(context.Background(), h.guard, policy, func(ctx context.Context) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		})
	}()
	<-started

	second := Run(context.Background(), h.guard, policy, func(ctx context.Context) (string, error) {
		return "latest", nil
	})

	assert.Equal(t, Success, second.Outcome)
	select {
	case r := <-first:
		assert.Equal(t, Abandoned, r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("first call was not superseded")
	}
	assert.Equal(t, 0, h.notes.Len())
}

func TestRunRecordsDiagnosticOnce(t *testing.T) {
	h := newHarness(t)

	Run(context.Background(), h.guard, DefaultPolicy("bookings.list").WithRetries(1, 0),
		func(ctx context.Context) (int, error) { return 0, errors.New("connection refused") })

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Len(t, h.sink.failures, 1)
	f := h.sink.failures[0]
	assert.Equal(t, "bookings.list", f.Operation)
	assert.Equal(t, KindNetwork, f.Kind)
	assert.Equal(t, 2, f.Attempts)
	assert.NotEmpty(t, f.ID)
	assert.Contains(t, h.logs.String(), "guarded operation failed")
}

func TestRunRecoveryOnlyAfterExhaustion(t *testing.T) {
	h := newHarness(t)
	var reloads atomic.Int32
	reload := ReloadRecovery{
		Kinds:  []Kind{KindMaps},
		Reload: func(ctx context.Context) error { reloads.Add(1); return nil },
	}

	Run(context.Background(), h.guard, DefaultPolicy("geocode"),
		func(ctx context.Context) (string, error) { return "48.85,2.35", nil },
		WithRecovery[string](reload))
	assert.Equal(t, int32(0), reloads.Load())

	Run(context.Background(), h.guard, DefaultPolicy("geocode").WithRetries(1, 0),
		func(ctx context.Context) (string, error) { return "", &codedErr{code: "maps/request-denied"} },
		WithRecovery[string](reload))
	assert.Equal(t, int32(1), reloads.Load())

	Run(context.Background(), h.guard, DefaultPolicy("geocode").WithRetries(0, 0),
		func(ctx context.Context) (string, error) { return "", &codedErr{code: "not-found"} },
		WithRecovery[string](reload))
	assert.Equal(t, int32(1), reloads.Load(), "reload restricted to maps failures")
}

func TestRunSwallowsNotifierPanic(t *testing.T) {
	h := newHarness(t, WithNotifier(NotifierFunc(func(context.Context, Notification) {
		panic("toast container missing")
	})))

	res := Run(context.Background(), h.guard, DefaultPolicy("profile.get").WithRetries(0, 0),
		func(ctx context.Context) (int, error) { return 0, errors.New("boom") })

	assert.Equal(t, Exhausted, res.Outcome)
	assert.True(t, strings.Contains(h.logs.String(), "notifier panicked"))
}

func TestRunSilentPolicySkipsNotification(t *testing.T) {
	h := newHarness(t)

	Run(context.Background(), h.guard, DefaultPolicy("prefetch").Silent().WithRetries(0, 0),
		func(ctx context.Context) (int, error) { return 0, errors.New("boom") })

	assert.Equal(t, 0, h.notes.Len())
}

func TestResultValueOr(t *testing.T) {
	ok := Result[int]{Outcome: Success, Value: 3}
	failed := Result[int]{Outcome: Exhausted, Value: 0}

	assert.Equal(t, 3, ok.ValueOr(9))
	assert.Equal(t, 9, failed.ValueOr(9))
}
