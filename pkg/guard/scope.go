package guard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/callguard/pkg/logging"
)

// Scope is the lifetime of the owner of guarded calls.
// It is alive from NewScope until Close; liveness never comes back.
type Scope struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool
	logger *logging.Logger
	detach func() bool

	// live orders state writes against teardown.
	live sync.RWMutex

	mu       sync.Mutex
	tokens   map[*token]struct{}
	current  *token
	hooks    []func(context.Context) error
	once     sync.Once
	teardown time.Duration
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithScopeLogger sets the logger used for teardown and state diagnostics.
func WithScopeLogger(l *logging.Logger) ScopeOption {
	return func(s *Scope) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTeardownTimeout bounds how long teardown hooks may run in total.
func WithTeardownTimeout(d time.Duration) ScopeOption {
	return func(s *Scope) {
		if d > 0 {
			s.teardown = d
		}
	}
}

// NewScope creates a live scope. Cancelling parent tears the scope down too.
func NewScope(parent context.Context, name string, opts ...ScopeOption) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Scope{
		name:     name,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logging.Discard(),
		tokens:   make(map[*token]struct{}),
		teardown: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("scope", name)
	s.alive.Store(true)

	s.detach = context.AfterFunc(parent, func() { s.Close() })
	return s
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// Alive reports whether the scope has not been torn down yet.
func (s *Scope) Alive() bool { return s.alive.Load() }

// whileAlive runs fn only if the scope is alive, and Close waits for a
// running fn before it reports the scope torn down.
func (s *Scope) whileAlive(fn func()) bool {
	s.live.RLock()
	defer s.live.RUnlock()
	if !s.Alive() {
		return false
	}
	fn()
	return true
}

// Context is cancelled when the scope is torn down.
func (s *Scope) Context() context.Context { return s.ctx }

// Done is closed when the scope is torn down.
func (s *Scope) Done() <-chan struct{} { return s.ctx.Done() }

// Logger returns the scope's logger.
func (s *Scope) Logger() *logging.Logger { return s.logger }

// OnTeardown registers fn to run on Close. Hooks run in reverse order (LIFO).
// Registering on a closed scope runs nothing.
func (s *Scope) OnTeardown(fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Alive() {
		return
	}
	s.hooks = append(s.hooks, fn)
}

// Close tears the scope down: liveness goes false, every in-flight token is
// cancelled and teardown hooks run. Subsequent calls do nothing.
func (s *Scope) Close() {
	s.once.Do(func() {
		s.live.Lock()
		s.alive.Store(false)
		s.live.Unlock()
		s.detach()
		s.cancel()

		s.mu.Lock()
		for t := range s.tokens {
			t.cancel()
		}
		s.tokens = map[*token]struct{}{}
		s.current = nil
		hooks := s.hooks
		s.hooks = nil
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.teardown)
		defer cancel()
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := runHook(ctx, hooks[i]); err != nil {
				s.logger.Warn("teardown hook failed", logging.Fields{"hook": i, "error": err})
			}
		}
		s.logger.Debug("scope torn down")
	})
}

func runHook(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("teardown hook panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// InFlight returns the number of invocations currently holding a token.
func (s *Scope) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// token is the cancellation handle of one guarded invocation.
type token struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func (t *token) cancelled() bool { return t.ctx.Err() != nil }

// acquire derives a fresh token from the scope and the caller's context and
// makes it current. With singleFlight the previous current token is cancelled.
func (s *Scope) acquire(caller context.Context, singleFlight bool) *token {
	ctx, cancel := context.WithCancel(s.ctx)
	t := &token{id: uuid.NewString(), ctx: ctx, cancel: cancel}
	if caller != nil {
		t.stop = context.AfterFunc(caller, cancel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Alive() {
		cancel()
		return t
	}
	if singleFlight && s.current != nil {
		s.current.cancel()
	}
	s.tokens[t] = struct{}{}
	s.current = t
	return t
}

// release forgets the token and frees its resources.
func (s *Scope) release(t *token) {
	s.mu.Lock()
	delete(s.tokens, t)
	if s.current == t {
		s.current = nil
	}
	s.mu.Unlock()

	if t.stop != nil {
		t.stop()
	}
	t.cancel()
}
