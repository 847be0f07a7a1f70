package guard

// LoadState tracks an in-progress flag and the last error of an owner's
// load cycle. Nothing changes once the scope is torn down.
type LoadState struct {
	loading *SafeValue[bool]
	message *SafeValue[string]
	kind    *SafeValue[Kind]
}

// NewLoadState creates an idle state with no error.
func NewLoadState(scope *Scope, name string) *LoadState {
	return &LoadState{
		loading: NewSafeValue(scope, name+".loading", false),
		message: NewSafeValue(scope, name+".error", ""),
		kind:    NewSafeValue(scope, name+".kind", KindUnknown),
	}
}

// Begin marks a load in progress and clears any previous error.
func (s *LoadState) Begin() {
	s.loading.Set(true)
	s.Clear()
}

// End marks the load finished.
func (s *LoadState) End() {
	s.loading.Set(false)
}

// Fail ends the load and records err's message and kind.
func (s *LoadState) Fail(err error) {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	s.FailMessage(msg)
	s.kind.Set(Classify(err))
}

// FailMessage ends the load and records msg. The kind is KindUnknown.
func (s *LoadState) FailMessage(msg string) {
	s.loading.Set(false)
	s.message.Set(msg)
	s.kind.Set(KindUnknown)
}

// Clear forgets the recorded error.
func (s *LoadState) Clear() {
	s.message.Set("")
	s.kind.Set(KindUnknown)
}

// Loading reports whether a load is in progress.
func (s *LoadState) Loading() bool { return s.loading.Get() }

// Message returns the recorded error message, empty if none.
func (s *LoadState) Message() string { return s.message.Get() }

// Kind returns the kind of the recorded error, KindUnknown if none.
func (s *LoadState) Kind() Kind { return s.kind.Get() }

// Failed reports whether an error message is recorded.
func (s *LoadState) Failed() bool { return s.message.Get() != "" }
