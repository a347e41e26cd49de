package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

// SQLite persists trust records in a SQLite database. The full record is
// stored as a JSON blob; score, level and last_calculated are duplicated
// into indexed columns so filters run in SQL instead of in memory.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	s, err := NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an existing handle and runs migrations.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS trust_records (
        entity_id TEXT PRIMARY KEY,
        score REAL NOT NULL,
        level INTEGER NOT NULL,
        last_calculated DATETIME,
        record JSON NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_trust_records_score ON trust_records (score);
    CREATE INDEX IF NOT EXISTS idx_trust_records_level ON trust_records (level);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrate trust_records: %w", err)
	}
	return nil
}

func (s *SQLite) Save(ctx context.Context, rec *trust.TrustRecord) error {
	if rec == nil || rec.EntityID == "" {
		return fmt.Errorf("store: record requires an entity id")
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record %s: %w", rec.EntityID, err)
	}
	query := `INSERT INTO trust_records (entity_id, score, level, last_calculated, record)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(entity_id) DO UPDATE SET
            score = excluded.score,
            level = excluded.level,
            last_calculated = excluded.last_calculated,
            record = excluded.record`
	_, err = s.db.ExecContext(ctx, query,
		rec.EntityID, rec.Score, rec.Level,
		rec.LastCalculatedAt.UTC().Format(time.RFC3339Nano), string(blob),
	)
	if err != nil {
		return fmt.Errorf("store: save record %s: %w", rec.EntityID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, entityID string) (*trust.TrustRecord, error) {
	var blob string
	row := s.db.QueryRowContext(ctx, `SELECT record FROM trust_records WHERE entity_id = ?`, entityID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
		}
		return nil, fmt.Errorf("store: get record %s: %w", entityID, err)
	}
	return decodeRecord(entityID, blob)
}

func (s *SQLite) Delete(ctx context.Context, entityID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trust_records WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("store: delete record %s: %w", entityID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
	}
	return nil
}

func (s *SQLite) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id FROM trust_records`)
	if err != nil {
		return nil, fmt.Errorf("store: list entity ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLite) Query(ctx context.Context, filter Filter) ([]*trust.TrustRecord, error) {
	query, args, err := buildRecordQuery(filter, dialectSQLite)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*trust.TrustRecord
	for rows.Next() {
		var (
			id   string
			blob string
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(id, blob)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLite) Exists(ctx context.Context, entityID string) (bool, error) {
	var one int
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM trust_records WHERE entity_id = ?`, entityID)
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("store: exists %s: %w", entityID, err)
	}
	return true, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trust_records`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count records: %w", err)
	}
	return n, nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trust_records`); err != nil {
		return fmt.Errorf("store: clear records: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func decodeRecord(entityID, blob string) (*trust.TrustRecord, error) {
	var rec trust.TrustRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("store: decode record %s: %w", entityID, err)
	}
	return &rec, nil
}

type sqlDialect int

const (
	dialectSQLite sqlDialect = iota
	dialectPostgres
)

// buildRecordQuery translates a Filter into SQL. SQLite uses ? placeholders,
// Postgres gets positional $n parameters.
func buildRecordQuery(filter Filter, dialect sqlDialect) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	if filter.MinLevel != nil {
		where = append(where, "level >= ?")
		args = append(args, *filter.MinLevel)
	}
	if filter.MaxLevel != nil {
		where = append(where, "level <= ?")
		args = append(args, *filter.MaxLevel)
	}
	if filter.MinScore != nil {
		where = append(where, "score >= ?")
		args = append(args, *filter.MinScore)
	}
	if filter.MaxScore != nil {
		where = append(where, "score <= ?")
		args = append(args, *filter.MaxScore)
	}

	var b strings.Builder
	b.WriteString("SELECT entity_id, record FROM trust_records")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	column := map[string]string{
		SortByScore:          "score",
		SortByLevel:          "level",
		SortByEntityID:       "entity_id",
		SortByLastCalculated: "last_calculated",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = SortByEntityID
	}
	col, ok := column[sortBy]
	if !ok {
		return "", nil, fmt.Errorf("store: unknown sort field %q", filter.SortBy)
	}
	b.WriteString(" ORDER BY " + col)
	if filter.SortOrder == SortDesc {
		b.WriteString(" DESC")
	}

	if filter.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 && dialect == dialectSQLite {
		b.WriteString(" LIMIT -1")
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", filter.Offset)
	}

	if dialect == dialectPostgres {
		return rewritePositional(b.String()), args, nil
	}
	return b.String(), args, nil
}

// rewritePositional converts ? placeholders to $1..$n for Postgres.
func rewritePositional(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
