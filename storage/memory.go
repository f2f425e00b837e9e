package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/buntdb"

	"copytrader/model"
)

type Memory struct {
	db *buntdb.DB

	mu        sync.Mutex
	lastJobID int64
	lastLogID int64
}

// FromMemory keeps jobs in an embedded buntdb instance. The default for
// tests and for runs that do not need jobs to survive a restart.
func FromMemory() (*Memory, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &Memory{db: db}, nil
}

func jobKey(id int64) string {
	return fmt.Sprintf("job:%020d", id)
}

func (m *Memory) CreateJob(job *model.CopyJob) error {
	m.mu.Lock()
	m.lastJobID++
	job.ID = m.lastJobID
	m.mu.Unlock()
	return m.writeJob(job)
}

func (m *Memory) UpdateJob(job *model.CopyJob) error {
	if job.ID == 0 {
		return fmt.Errorf("update of unsaved job %s", job.Key())
	}
	return m.writeJob(job)
}

func (m *Memory) writeJob(job *model.CopyJob) error {
	content, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(jobKey(job.ID), string(content), nil)
		return err
	})
}

func (m *Memory) Jobs(filters ...JobFilter) ([]*model.CopyJob, error) {
	jobs := make([]*model.CopyJob, 0)
	err := m.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		tx.AscendKeys("job:*", func(key, value string) bool {
			var job model.CopyJob
			if innerErr = json.Unmarshal([]byte(value), &job); innerErr != nil {
				return false
			}
			for _, filter := range filters {
				if !filter(job) {
					return true
				}
			}
			jobs = append(jobs, &job)
			return true
		})
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (m *Memory) AppendLog(level string, accountID int64, message string) error {
	m.mu.Lock()
	m.lastLogID++
	id := m.lastLogID
	m.mu.Unlock()

	row := model.SystemLog{ID: id, Level: level, AccountID: accountID, Message: message}
	content, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(fmt.Sprintf("log:%020d", id), string(content), nil); err != nil {
			return err
		}
		if id > maxLogRows {
			if _, err := tx.Delete(fmt.Sprintf("log:%020d", id-maxLogRows)); err != nil {
				return err
			}
		}
		return nil
	})
}
