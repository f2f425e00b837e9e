package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrader/model"
)

func TestMemoryJobLifecycle(t *testing.T) {
	store, err := FromMemory()
	require.NoError(t, err)

	job := &model.CopyJob{
		MasterAccountID:   1,
		MasterOrderID:     "1001",
		FollowerAccountID: 2,
		Symbol:            "BTCUSDT",
		Side:              model.SideTypeBuy,
		Status:            model.JobStatusPending,
	}
	require.NoError(t, store.CreateJob(job))
	assert.NotZero(t, job.ID)

	job.Status = model.JobStatusConfirmed
	require.NoError(t, store.UpdateJob(job))

	jobs, err := store.Jobs(WithFollower(2), WithStatusIn(model.JobStatusConfirmed))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "1001", jobs[0].MasterOrderID)

	jobs, err = store.Jobs(WithFollower(99))
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestMemoryUpdateUnsavedJob(t *testing.T) {
	store, err := FromMemory()
	require.NoError(t, err)

	err = store.UpdateJob(&model.CopyJob{MasterOrderID: "1", FollowerAccountID: 2})
	assert.Error(t, err)
}

func TestMemoryAppendLogPrunesOldRows(t *testing.T) {
	store, err := FromMemory()
	require.NoError(t, err)

	for i := 0; i < maxLogRows+5; i++ {
		require.NoError(t, store.AppendLog("info", 1, "entry"))
	}
}

func TestMemoryFilterCombinations(t *testing.T) {
	store, err := FromMemory()
	require.NoError(t, err)

	for _, j := range []*model.CopyJob{
		{MasterAccountID: 1, MasterOrderID: "a", FollowerAccountID: 2, Symbol: "BTCUSDT", Status: model.JobStatusFailed},
		{MasterAccountID: 1, MasterOrderID: "a", FollowerAccountID: 3, Symbol: "BTCUSDT", Status: model.JobStatusConfirmed},
		{MasterAccountID: 1, MasterOrderID: "b", FollowerAccountID: 2, Symbol: "ETHUSDT", Status: model.JobStatusSubmitted},
	} {
		require.NoError(t, store.CreateJob(j))
	}

	jobs, err := store.Jobs(WithMasterOrderID("a"))
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = store.Jobs(WithTerminal())
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = store.Jobs(WithSymbol("ETHUSDT"), WithFollower(2))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "b", jobs[0].MasterOrderID)
}
