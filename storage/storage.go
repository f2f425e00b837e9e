package storage

import (
	"time"

	"copytrader/model"
)

type JobFilter func(model.CopyJob) bool

// Storage persists copy jobs and the bounded system log. Implementations
// must be safe for concurrent use by lane workers.
type Storage interface {
	CreateJob(job *model.CopyJob) error
	UpdateJob(job *model.CopyJob) error
	Jobs(filters ...JobFilter) ([]*model.CopyJob, error)
	AppendLog(level string, accountID int64, message string) error
}

func WithStatusIn(status ...model.JobStatus) JobFilter {
	return func(job model.CopyJob) bool {
		for _, s := range status {
			if s == job.Status {
				return true
			}
		}
		return false
	}
}

func WithMasterOrderID(orderID string) JobFilter {
	return func(job model.CopyJob) bool {
		return job.MasterOrderID == orderID
	}
}

func WithMasterAccount(accountID int64) JobFilter {
	return func(job model.CopyJob) bool {
		return job.MasterAccountID == accountID
	}
}

func WithFollower(accountID int64) JobFilter {
	return func(job model.CopyJob) bool {
		return job.FollowerAccountID == accountID
	}
}

func WithSymbol(symbol string) JobFilter {
	return func(job model.CopyJob) bool {
		return job.Symbol == symbol
	}
}

func WithTerminal() JobFilter {
	return func(job model.CopyJob) bool {
		return job.Status.Terminal()
	}
}

func WithCreatedAfter(t time.Time) JobFilter {
	return func(job model.CopyJob) bool {
		return job.CreatedAt.After(t)
	}
}
