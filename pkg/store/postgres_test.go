package store_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/aci/core/pkg/store"
	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

func newMockPostgres(t *testing.T) (*store.Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trust_records").
		WillReturnResult(sqlmock.NewResult(0, 0))
	p, err := store.NewPostgres(db)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return p, mock
}

func TestPostgresSaveUpserts(t *testing.T) {
	p, mock := newMockPostgres(t)
	rec := sampleRecord("agent-1", 420, 2)
	blob, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trust_records")).
		WithArgs(rec.EntityID, rec.Score, rec.Level, rec.LastCalculatedAt.UTC(), blob).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, p.Save(context.Background(), rec))
}

func TestPostgresGetUnknownEntity(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM trust_records WHERE entity_id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	_, err := p.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, trust.ErrEntityNotFound)
}

func TestPostgresGetDecodesBlob(t *testing.T) {
	p, mock := newMockPostgres(t)
	rec := sampleRecord("agent-1", 615, 3)
	blob, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM trust_records WHERE entity_id = $1")).
		WithArgs("agent-1").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(blob))

	got, err := p.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 615.0, got.Score)
	assert.Equal(t, 3, got.Level)
}

func TestPostgresDeleteMissingEntity(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM trust_records WHERE entity_id = $1")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, p.Delete(context.Background(), "ghost"), trust.ErrEntityNotFound)
}

func TestPostgresQueryUsesPositionalParameters(t *testing.T) {
	p, mock := newMockPostgres(t)
	rec := sampleRecord("bravo", 450, 2)
	blob, err := json.Marshal(rec)
	require.NoError(t, err)

	query := "SELECT entity_id, record FROM trust_records WHERE score >= $1 AND score <= $2 ORDER BY score DESC LIMIT 10"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(100.0, 800.0).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "record"}).AddRow("bravo", blob))

	minScore, maxScore := 100.0, 800.0
	got, err := p.Query(context.Background(), store.Filter{
		MinScore:  &minScore,
		MaxScore:  &maxScore,
		SortBy:    store.SortByScore,
		SortOrder: store.SortDesc,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bravo", got[0].EntityID)
}
