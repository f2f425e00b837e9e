package engine

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/olekukonko/tablewriter"

	"copytrader/model"
)

// StatusRegistry aggregates engine state, per-account health and job
// counters. All methods are safe for concurrent use; Snapshot returns a
// deep copy that stays valid after the engine moves on.
type StatusRegistry struct {
	clock clockwork.Clock

	mu             sync.RWMutex
	state          model.EngineState
	startedAt      time.Time
	accounts       map[int64]model.AccountHealth
	jobsDispatched int64
	jobsConfirmed  int64
	jobsFailed     int64
	forcedFailures int64
}

func NewStatusRegistry(clock clockwork.Clock) *StatusRegistry {
	return &StatusRegistry{
		clock:    clock,
		state:    model.EngineStateStopped,
		accounts: map[int64]model.AccountHealth{},
	}
}

func (r *StatusRegistry) SetState(state model.EngineState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	if state == model.EngineStateRunning {
		r.startedAt = r.clock.Now()
	}
}

func (r *StatusRegistry) State() model.EngineState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *StatusRegistry) account(accountID int64) model.AccountHealth {
	health, ok := r.accounts[accountID]
	if !ok {
		health = model.AccountHealth{AccountID: accountID, Connectivity: model.ConnectivityOK}
	}
	return health
}

func (r *StatusRegistry) MarkOK(accountID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	health := r.account(accountID)
	health.Connectivity = model.ConnectivityOK
	health.ConsecutiveFailures = 0
	health.CircuitOpenUntil = time.Time{}
	health.LastError = ""
	health.UpdatedAt = r.clock.Now()
	r.accounts[accountID] = health
}

// MarkFailure degrades the account; connectivity failures mark it down.
func (r *StatusRegistry) MarkFailure(accountID int64, err error, connectivity bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	health := r.account(accountID)
	health.ConsecutiveFailures++
	health.Connectivity = model.ConnectivityDegraded
	if connectivity {
		health.Connectivity = model.ConnectivityDown
	}
	if err != nil {
		health.LastError = err.Error()
	}
	health.UpdatedAt = r.clock.Now()
	r.accounts[accountID] = health
}

func (r *StatusRegistry) SetCircuitOpen(accountID int64, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	health := r.account(accountID)
	health.CircuitOpenUntil = until
	health.UpdatedAt = r.clock.Now()
	r.accounts[accountID] = health
}

func (r *StatusRegistry) AddDispatched() { r.add(&r.jobsDispatched) }
func (r *StatusRegistry) AddConfirmed() { r.add(&r.jobsConfirmed) }
func (r *StatusRegistry) AddFailed() { r.add(&r.jobsFailed) }
func (r *StatusRegistry) AddForcedFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forcedFailures++
	r.jobsFailed++
}

func (r *StatusRegistry) add(counter *int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*counter++
}

func (r *StatusRegistry) Snapshot() model.SystemStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make(map[int64]model.AccountHealth, len(r.accounts))
	for id, health := range r.accounts {
		accounts[id] = health
	}
	return model.SystemStatus{
		State:          r.state,
		StartedAt:      r.startedAt,
		Accounts:       accounts,
		JobsDispatched: r.jobsDispatched,
		JobsConfirmed:  r.jobsConfirmed,
		JobsFailed:     r.jobsFailed,
		ForcedFailures: r.forcedFailures,
	}
}

// Summary renders the snapshot as a table for shutdown logs.
func (r *StatusRegistry) Summary() string {
	snapshot := r.Snapshot()

	buffer := bytes.NewBuffer(nil)
	fmt.Fprintf(buffer, "state: %s | dispatched: %d | confirmed: %d | failed: %d (forced: %d)\n",
		snapshot.State, snapshot.JobsDispatched, snapshot.JobsConfirmed,
		snapshot.JobsFailed, snapshot.ForcedFailures)

	ids := make([]int64, 0, len(snapshot.Accounts))
	for id := range snapshot.Accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Account", "Connectivity", "Failures", "Circuit Open Until", "Last Error"})
	for _, id := range ids {
		health := snapshot.Accounts[id]
		openUntil := "-"
		if !health.CircuitOpenUntil.IsZero() {
			openUntil = health.CircuitOpenUntil.Format("15:04:05")
		}
		table.Append([]string{
			fmt.Sprintf("%d", health.AccountID),
			string(health.Connectivity),
			fmt.Sprintf("%d", health.ConsecutiveFailures),
			openUntil,
			health.LastError,
		})
	}
	table.Render()
	return buffer.String()
}
