package model

import (
	"fmt"
	"time"
)

type JobStatus string

var (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusSizing     JobStatus = "SIZING"
	JobStatusValidating JobStatus = "VALIDATING"
	JobStatusSubmitting JobStatus = "SUBMITTING"
	JobStatusSubmitted  JobStatus = "SUBMITTED"
	JobStatusConfirmed  JobStatus = "CONFIRMED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusConfirmed || s == JobStatusFailed
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusSizing, JobStatusFailed},
	JobStatusSizing:     {JobStatusValidating, JobStatusFailed},
	JobStatusValidating: {JobStatusSubmitting, JobStatusFailed},
	JobStatusSubmitting: {JobStatusSubmitted, JobStatusFailed},
	JobStatusSubmitted:  {JobStatusConfirmed, JobStatusFailed},
}

// CopyJob is one replication attempt of a master order onto a single
// follower account. The (MasterAccountID, MasterOrderID, FollowerAccountID)
// triple is unique for the lifetime of the dedup window.
type CopyJob struct {
	ID                int64           `db:"id" json:"id" gorm:"primary_key;autoIncrement"`
	MasterAccountID   int64           `db:"master_account_id" json:"master_account_id"`
	MasterOrderID     string          `db:"master_order_id" json:"master_order_id" gorm:"index:idx_job_key"`
	FollowerAccountID int64           `db:"follower_account_id" json:"follower_account_id" gorm:"index:idx_job_key"`
	Symbol            string          `db:"symbol" json:"symbol"`
	Side              SideType        `db:"side" json:"side"`
	Type              OrderType       `db:"type" json:"type"`
	MasterQuantity    float64         `db:"master_quantity" json:"master_quantity"`
	Price             float64         `db:"price" json:"price"`
	Quantity          float64         `db:"quantity" json:"quantity"`
	Leverage          int             `db:"leverage" json:"leverage"`
	Status            JobStatus       `db:"status" json:"status"`
	AttemptCount      int             `db:"attempt_count" json:"attempt_count"`
	LastError         string          `db:"last_error" json:"last_error"`
	ExchangeOrderID   string          `db:"exchange_order_id" json:"exchange_order_id"`
	ExchangeStatus    OrderStatusType `db:"exchange_status" json:"exchange_status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	TerminalAt        time.Time       `db:"terminal_at" json:"terminal_at"`
}

// Key is the composite identity used for dedup and in-flight claims.
// Order ids are only unique within one master, so the master is part of it.
func (j CopyJob) Key() string {
	return fmt.Sprintf("%d:%s:%d", j.MasterAccountID, j.MasterOrderID, j.FollowerAccountID)
}

// CanTransitionTo reports whether the move from the current status is legal.
func (j CopyJob) CanTransitionTo(next JobStatus) bool {
	for _, s := range jobTransitions[j.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (j CopyJob) String() string {
	return fmt.Sprintf("[JOB %s] follower=%d %s %s %s %f@%f status=%s attempts=%d",
		j.MasterOrderID, j.FollowerAccountID, j.Side, j.Type, j.Symbol,
		j.Quantity, j.Price, j.Status, j.AttemptCount)
}
