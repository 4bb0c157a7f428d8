package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Phonograph/internal/jobs"
	"github.com/hbomb79/Phonograph/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedJob() jobs.Job {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return jobs.Job{
		ID:          uuid.New(),
		URL:         videoURL,
		State:       jobs.COMPLETE,
		Title:       "My Song (Live)",
		Filename:    "My Song Live.mp3",
		ContentType: "audio/mpeg",
		SizeBytes:   4096,
		CreatedAt:   now.Add(-time.Minute),
		StartedAt:   now.Add(-50 * time.Second),
		FinishedAt:  now,
	}
}

func Test_RedisStore(t *testing.T) {
	client, config := helpers.RedisClient(t)
	store := jobs.NewRedisStore(client, config)
	ctx := context.Background()

	stored := finishedJob()
	require.NoError(t, store.Store(ctx, stored))

	loaded, ok, err := store.Load(ctx, stored.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.ID, loaded.ID)
	assert.Equal(t, stored.State, loaded.State)
	assert.Equal(t, stored.Filename, loaded.Filename)
	assert.Equal(t, stored.SizeBytes, loaded.SizeBytes)
	assert.True(t, stored.FinishedAt.Equal(loaded.FinishedAt))

	queued := jobs.Job{ID: uuid.New(), URL: videoURL, State: jobs.QUEUED, CreatedAt: time.Now()}
	require.NoError(t, store.Store(ctx, queued))
	loaded, ok, err = store.Load(ctx, queued.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, loaded.FinishedAt.IsZero())

	require.NoError(t, store.Delete(ctx, stored.ID))
	_, ok, err = store.Load(ctx, stored.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_Service_FallsBackToMirror(t *testing.T) {
	client, config := helpers.RedisClient(t)
	store := jobs.NewRedisStore(client, config)

	stored := finishedJob()
	require.NoError(t, store.Store(context.Background(), stored))

	service := newService(t, newGatedRunner(), nil, jobs.WithMirror(store))
	job, err := service.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Filename, job.Filename)
}

func Test_HistoryStore(t *testing.T) {
	db := helpers.DatabaseManager(t)
	store := jobs.NewHistoryStore(db)
	ctx := context.Background()

	older := finishedJob()
	older.FinishedAt = older.FinishedAt.Add(-time.Hour)
	failed := finishedJob()
	failed.State = jobs.FAILED
	failed.Error = "rate-limited after 3 attempts"
	failed.Filename = ""

	require.NoError(t, store.Record(ctx, older))
	require.NoError(t, store.Record(ctx, failed))
	require.NoError(t, store.Record(ctx, failed), "recording twice must not fail")

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, failed.ID, recent[0].ID)
	assert.Equal(t, jobs.FAILED, recent[0].State)
	assert.Equal(t, failed.Error, recent[0].Error)
	assert.Equal(t, older.ID, recent[1].ID)

	recent, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
