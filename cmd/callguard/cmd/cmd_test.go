package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/psantana5/callguard/internal/config"
	"github.com/psantana5/callguard/pkg/backend"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAll(t *testing.T) {
	got := classifyAll(guard.NewLocalizer("fr-CA"), []string{
		"permission-denied",
		"auth/popup-closed-by-user",
		"dial tcp: connection refused",
		"maps/over-query-limit",
	})
	require.Len(t, got, 4)

	assert.Equal(t, "permission-denied", got[0].Kind)
	assert.False(t, got[0].Retryable)
	assert.Equal(t, guard.NewLocalizer("fr").Message(guard.KindPermissionDenied), got[0].Message)

	assert.Equal(t, "cancelled", got[1].Kind)
	assert.Equal(t, "network", got[2].Kind)
	assert.True(t, got[2].Retryable)
	assert.Equal(t, "maps", got[3].Kind)
}

func TestPolicyViews(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  maps_geocode:\n    retries: 0\n  checkout_pay:\n    timeout: 30s\n"), 0o644))
	c, err := config.Load(path)
	require.NoError(t, err)

	names := callSites(c)
	assert.Equal(t, []string{"bookings.create", "bookings.list", "checkout.pay", "maps.geocode", "maps.route", "profile.get"}, names)

	views := policyViews(c, []string{"maps.geocode", "checkout.pay"})
	assert.Equal(t, 0, views[0].Retries)
	assert.Equal(t, "10s", views[0].Timeout)
	assert.Equal(t, "30s", views[1].Timeout)
	assert.Equal(t, guard.DefaultRetries, views[1].Retries)
}

func TestProbeOperationArgs(t *testing.T) {
	client := backend.NewClient(backend.Config{BaseURL: "http://127.0.0.1:1"})

	_, err := probeOperation(client, "maps.route", []string{"Airport"})
	assert.Error(t, err)

	_, err = probeOperation(client, "payments.charge", nil)
	assert.Error(t, err)

	op, err := probeOperation(client, "bookings.list", []string{"u1"})
	require.NoError(t, err)
	assert.NotNil(t, op)
}

func TestKindList(t *testing.T) {
	assert.Contains(t, kindList(), "permission-denied")
	assert.Contains(t, classifyCmd.Long, "Kinds: unknown")
}
