package model

import "time"

type EngineState string

var (
	EngineStateStopped      EngineState = "stopped"
	EngineStateInitializing EngineState = "initializing"
	EngineStateRunning      EngineState = "running"
)

type Connectivity string

var (
	ConnectivityOK       Connectivity = "ok"
	ConnectivityDegraded Connectivity = "degraded"
	ConnectivityDown     Connectivity = "down"
)

// AccountHealth is the registry's view of a single account.
type AccountHealth struct {
	AccountID           int64        `json:"account_id"`
	Connectivity        Connectivity `json:"connectivity"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	CircuitOpenUntil    time.Time    `json:"circuit_open_until"`
	LastError           string       `json:"last_error"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// SystemStatus is a self-contained point-in-time snapshot. Maps are deep
// copies; callers may hold it across engine restarts.
type SystemStatus struct {
	State          EngineState             `json:"state"`
	StartedAt      time.Time               `json:"started_at"`
	Accounts       map[int64]AccountHealth `json:"accounts"`
	JobsDispatched int64                   `json:"jobs_dispatched"`
	JobsConfirmed  int64                   `json:"jobs_confirmed"`
	JobsFailed     int64                   `json:"jobs_failed"`
	ForcedFailures int64                   `json:"forced_failures"`
}
