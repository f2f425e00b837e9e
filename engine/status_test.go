package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"copytrader/model"
)

func TestStatusRegistrySnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := NewStatusRegistry(clock)

	assert.Equal(t, model.EngineStateStopped, registry.State())

	registry.SetState(model.EngineStateRunning)
	registry.AddDispatched()
	registry.AddDispatched()
	registry.AddConfirmed()
	registry.AddFailed()
	registry.MarkFailure(2, errors.New("timeout"), false)

	snapshot := registry.Snapshot()
	assert.Equal(t, model.EngineStateRunning, snapshot.State)
	assert.Equal(t, int64(2), snapshot.JobsDispatched)
	assert.Equal(t, int64(1), snapshot.JobsConfirmed)
	assert.Equal(t, int64(1), snapshot.JobsFailed)
	assert.Equal(t, model.ConnectivityDegraded, snapshot.Accounts[2].Connectivity)
	assert.Equal(t, 1, snapshot.Accounts[2].ConsecutiveFailures)
	assert.Equal(t, "timeout", snapshot.Accounts[2].LastError)
}

func TestStatusRegistrySnapshotIsDetached(t *testing.T) {
	registry := NewStatusRegistry(clockwork.NewFakeClock())
	registry.MarkFailure(2, errors.New("down"), true)

	snapshot := registry.Snapshot()
	registry.MarkOK(2)

	assert.Equal(t, model.ConnectivityDown, snapshot.Accounts[2].Connectivity, "old snapshot unchanged")
	assert.Equal(t, model.ConnectivityOK, registry.Snapshot().Accounts[2].Connectivity)
}

func TestStatusRegistryMarkOKResets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := NewStatusRegistry(clock)

	registry.MarkFailure(2, errors.New("x"), false)
	registry.MarkFailure(2, errors.New("y"), true)
	registry.SetCircuitOpen(2, clock.Now().Add(time.Minute))

	health := registry.Snapshot().Accounts[2]
	assert.Equal(t, 2, health.ConsecutiveFailures)
	assert.False(t, health.CircuitOpenUntil.IsZero())

	registry.MarkOK(2)
	health = registry.Snapshot().Accounts[2]
	assert.Zero(t, health.ConsecutiveFailures)
	assert.True(t, health.CircuitOpenUntil.IsZero())
	assert.Empty(t, health.LastError)
}

func TestStatusRegistryForcedFailures(t *testing.T) {
	registry := NewStatusRegistry(clockwork.NewFakeClock())
	registry.AddForcedFailure()
	registry.AddForcedFailure()

	snapshot := registry.Snapshot()
	assert.Equal(t, int64(2), snapshot.ForcedFailures)
	assert.Equal(t, int64(2), snapshot.JobsFailed, "forced failures count as failed")
}

func TestStatusRegistrySummary(t *testing.T) {
	registry := NewStatusRegistry(clockwork.NewFakeClock())
	registry.SetState(model.EngineStateRunning)
	registry.MarkFailure(2, errors.New("margin"), false)

	summary := registry.Summary()
	assert.Contains(t, summary, "running")
	assert.Contains(t, summary, "margin")
	assert.Contains(t, summary, "degraded")
}
