package database_test

import (
	"context"
	"testing"

	"github.com/hbomb79/Phonograph/internal/database"
	"github.com/hbomb79/Phonograph/tests/helpers"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Connect_RequiresEnabled(t *testing.T) {
	err := database.New().Connect(context.Background(), database.Config{Host: "localhost", Port: "5432"})
	assert.Error(t, err)
}

func Test_Unconnected_Manager(t *testing.T) {
	db := database.New()
	assert.Nil(t, db.GetSqlxDb())
	assert.ErrorIs(t, db.WrapTx(func(*sqlx.Tx) error { return nil }), database.ErrNotConnected)
	assert.NoError(t, db.Close())
}

func Test_Connect_AppliesMigrations(t *testing.T) {
	db := helpers.DatabaseManager(t)

	var count int
	require.NoError(t, db.GetSqlxDb().Get(&count, "SELECT COUNT(*) FROM job_history"))
	assert.Zero(t, count)

	require.NoError(t, db.WrapTx(func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO job_history(id, url, state, created_at, finished_at)
			VALUES ('7b3c1d4e-1111-4a4a-9b9b-000000000001', 'https://example.com', 'COMPLETE', NOW(), NOW())`)
		return err
	}))
	require.NoError(t, db.GetSqlxDb().Get(&count, "SELECT COUNT(*) FROM job_history"))
	assert.Equal(t, 1, count)
}
