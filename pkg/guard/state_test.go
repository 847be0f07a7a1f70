package guard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/psantana5/callguard/pkg/logging"
)

func newLoggedScope(t *testing.T) (*Scope, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.DEBUG, false)
	logger.SetOutput(&buf)
	return NewScope(context.Background(), t.Name(), WithScopeLogger(logger)), &buf
}

func TestSafeValueLive(t *testing.T) {
	scope, _ := newLoggedScope(t)
	defer scope.Close()

	count := NewSafeValue(scope, "count", 1)
	var seen []int
	count.OnChange(func(v int) { seen = append(seen, v) })

	count.Set(5)
	count.Update(func(prev int) int { return prev * 2 })

	if count.Get() != 10 {
		t.Errorf("Expected 10, got %d", count.Get())
	}
	if len(seen) != 2 || seen[0] != 5 || seen[1] != 10 {
		t.Errorf("Unexpected change notifications: %v", seen)
	}
}

func TestSafeValueNoopAfterTeardown(t *testing.T) {
	scope, buf := newLoggedScope(t)
	name := NewSafeValue(scope, "user.name", "ada")
	notified := false
	name.OnChange(func(string) { notified = true })

	scope.Close()
	name.Set("grace")
	name.Update(func(prev string) string {
		t.Error("Updater must not run after teardown")
		return prev
	})

	if name.Get() != "ada" {
		t.Errorf("Value changed after teardown: %q", name.Get())
	}
	if notified {
		t.Error("Subscribers must not run after teardown")
	}
	if got := strings.Count(buf.String(), "state update skipped after teardown"); got != 2 {
		t.Errorf("Expected 2 warnings, got %d in %q", got, buf.String())
	}
	if !strings.Contains(buf.String(), "state=user.name") {
		t.Errorf("Warning should name the state: %q", buf.String())
	}
}

func TestSafeValueUpdateRacingClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		scope := NewScope(context.Background(), "race")
		counter := NewSafeValue(scope, "counter", 0)

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					counter.Update(func(prev int) int { return prev + 1 })
				}
			}()
		}

		scope.Close()
		frozen := counter.Get()
		wg.Wait()

		if got := counter.Get(); got != frozen {
			t.Fatalf("Iteration %d: value moved from %d to %d after Close returned", i, frozen, got)
		}
	}
}

func TestLoadStateTransitions(t *testing.T) {
	scope, _ := newLoggedScope(t)
	defer scope.Close()
	st := NewLoadState(scope, "bookings")

	if st.Loading() || st.Failed() {
		t.Fatal("New load state should be idle")
	}

	st.Begin()
	if !st.Loading() {
		t.Error("Begin should set loading")
	}

	st.Fail(errors.New("backend unavailable"))
	if st.Loading() {
		t.Error("Fail should clear loading")
	}
	if st.Message() != "backend unavailable" {
		t.Errorf("Unexpected message %q", st.Message())
	}
	if st.Kind() != KindUnavailable {
		t.Errorf("Expected kind unavailable, got %s", st.Kind())
	}

	st.Begin()
	if st.Failed() || st.Kind() != KindUnknown {
		t.Error("Begin should clear the previous error and kind")
	}
	st.End()
	if st.Loading() {
		t.Error("End should clear loading")
	}

	st.FailMessage("Please sign in again.")
	if st.Message() != "Please sign in again." {
		t.Errorf("Unexpected message %q", st.Message())
	}
	st.Clear()
	if st.Failed() {
		t.Error("Clear should forget the error")
	}

	st.Fail(nil)
	if st.Message() != "unknown error" {
		t.Errorf("nil error should record a generic message, got %q", st.Message())
	}
}

func TestLoadStateFrozenAfterTeardown(t *testing.T) {
	scope, _ := newLoggedScope(t)
	st := NewLoadState(scope, "profile")
	st.Begin()

	scope.Close()
	st.Fail(errors.New("late failure"))

	if !st.Loading() || st.Failed() {
		t.Error("Load state must not change after teardown")
	}
}
