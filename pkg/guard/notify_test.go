package guard

import (
	"bytes"
	"context"
	"testing"

	"github.com/psantana5/callguard/pkg/logging"
	"github.com/stretchr/testify/assert"
)

func TestNotifiersFanOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	n := Notifiers{a, nil, LogNotifier{Logger: logger}, b}
	n.Notify(context.Background(), Notification{Operation: "bookings.list", Kind: KindNetwork, Message: "offline"})

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	last, ok := b.Last()
	assert.True(t, ok)
	assert.Equal(t, KindNetwork, last.Kind)
	assert.Contains(t, buf.String(), "offline")
	assert.Contains(t, buf.String(), "kind=network")
}

func TestRecorderEmpty(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)
	assert.Empty(t, r.Notifications())
}
