package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/demandes-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "demandes", SSLMode: "disable"})
	require.Equal(t, "host=db port=5432 user=u password=p dbname=demandes sslmode=disable", dsn)
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "archive_records_reference_key"})
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "archive_records_reference_key"))
	require.False(t, IsUniqueViolation(err, "other"))
	require.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("stop")
	err = WithTx(context.Background(), db, func(tx *sqlx.Tx) error { return sentinel })
	require.ErrorIs(t, err, sentinel)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, WithTx(context.Background(), db, func(tx *sqlx.Tx) error { return nil }))
	require.NoError(t, mock.ExpectationsWereMet())
}
