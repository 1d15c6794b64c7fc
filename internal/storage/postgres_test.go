package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS minstrel_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"value"}).AddRow([]byte("snapshot"))
	mock.ExpectQuery("SELECT value FROM minstrel_checkpoints").
		WithArgs("cp").
		WillReturnRows(rows)

	val, found, err := store.Get(context.Background(), "cp")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("snapshot"), val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAbsent(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT value FROM minstrel_checkpoints").
		WithArgs("cp").
		WillReturnError(sql.ErrNoRows)

	val, found, err := store.Get(context.Background(), "cp")
	require.NoError(t, err, "an absent key is not an error")
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestPostgresStore_Set(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO minstrel_checkpoints").
		WithArgs("cp", []byte("snapshot")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Set(context.Background(), "cp", []byte("snapshot")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetError(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO minstrel_checkpoints").
		WillReturnError(errors.New("connection reset"))

	err := store.Set(context.Background(), "cp", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
