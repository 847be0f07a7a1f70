package guard

import "time"

// Outcome tags how a guarded invocation ended.
type Outcome int

const (
	// Success means the operation returned a value.
	Success Outcome = iota
	// Exhausted means every allowed attempt failed, or a failure was not retryable.
	Exhausted
	// Abandoned means the owner went away (or the call was superseded)
	// before a result could be delivered.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Exhausted:
		return "exhausted"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Result is what Run returns. Value holds the operation's result on
// Success and the configured fallback otherwise.
type Result[T any] struct {
	Outcome  Outcome
	Value    T
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Ok reports whether the value came from the operation.
func (r Result[T]) Ok() bool { return r.Outcome == Success }

// ValueOr returns the operation's value on success and def otherwise.
func (r Result[T]) ValueOr(def T) T {
	if r.Ok() {
		return r.Value
	}
	return def
}

// Failure describes a guarded invocation that ended without a value.
type Failure struct {
	ID        string
	Operation string
	Kind      Kind
	Message   string
	Err       error
	Attempts  int
	Outcome   Outcome
	Time      time.Time
}
