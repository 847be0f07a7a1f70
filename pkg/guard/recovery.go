package guard

import (
	"context"

	"github.com/psantana5/callguard/pkg/logging"
)

// Recovery is an escalation a call site opts into explicitly. It runs after
// all attempts failed, only while the scope is still alive.
type Recovery interface {
	Name() string
	Recover(ctx context.Context, f Failure) error
}

// RecoveryFunc adapts a named function to Recovery.
type RecoveryFunc struct {
	Label string
	Fn    func(ctx context.Context, f Failure) error
}

// Name returns the label.
func (r RecoveryFunc) Name() string { return r.Label }

// Recover calls Fn.
func (r RecoveryFunc) Recover(ctx context.Context, f Failure) error { return r.Fn(ctx, f) }

// ReloadRecovery re-initializes a collaborator from scratch, the last-resort
// answer to a provider that keeps failing (a full page reload in a browser).
// Kinds restricts it to specific failure kinds; empty means any.
type ReloadRecovery struct {
	Reload func(ctx context.Context) error
	Kinds  []Kind
	Logger *logging.Logger
}

// Name returns "reload".
func (r ReloadRecovery) Name() string { return "reload" }

// Recover runs Reload when the failure kind matches.
func (r ReloadRecovery) Recover(ctx context.Context, f Failure) error {
	if !r.matches(f.Kind) || r.Reload == nil {
		return nil
	}
	if r.Logger != nil {
		r.Logger.Warn("reloading after repeated failures", logging.Fields{
			"operation": f.Operation,
			"kind":      f.Kind.String(),
			"attempts":  f.Attempts,
		})
	}
	return r.Reload(ctx)
}

func (r ReloadRecovery) matches(k Kind) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, want := range r.Kinds {
		if want == k {
			return true
		}
	}
	return false
}
