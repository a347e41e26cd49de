package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

// Postgres persists trust records in PostgreSQL. Same layout as the SQLite
// provider: a JSONB blob plus indexed score/level columns for filtering.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with the given DSN and runs migrations.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	p, err := NewPostgres(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing handle and runs migrations.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	p := &Postgres{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS trust_records (
        entity_id TEXT PRIMARY KEY,
        score DOUBLE PRECISION NOT NULL,
        level INTEGER NOT NULL,
        last_calculated TIMESTAMPTZ,
        record JSONB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_trust_records_score ON trust_records (score);
    CREATE INDEX IF NOT EXISTS idx_trust_records_level ON trust_records (level)`
	_, err := p.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrate trust_records: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, rec *trust.TrustRecord) error {
	if rec == nil || rec.EntityID == "" {
		return fmt.Errorf("store: record requires an entity id")
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record %s: %w", rec.EntityID, err)
	}
	query := `
		INSERT INTO trust_records (entity_id, score, level, last_calculated, record)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id) DO UPDATE SET
			score = EXCLUDED.score,
			level = EXCLUDED.level,
			last_calculated = EXCLUDED.last_calculated,
			record = EXCLUDED.record
	`
	_, err = p.db.ExecContext(ctx, query,
		rec.EntityID, rec.Score, rec.Level, rec.LastCalculatedAt.UTC(), blob)
	if err != nil {
		return fmt.Errorf("store: save record %s: %w", rec.EntityID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, entityID string) (*trust.TrustRecord, error) {
	var blob []byte
	row := p.db.QueryRowContext(ctx, `SELECT record FROM trust_records WHERE entity_id = $1`, entityID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
		}
		return nil, fmt.Errorf("store: get record %s: %w", entityID, err)
	}
	return decodeRecord(entityID, string(blob))
}

func (p *Postgres) Delete(ctx context.Context, entityID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM trust_records WHERE entity_id = $1`, entityID)
	if err != nil {
		return fmt.Errorf("store: delete record %s: %w", entityID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
	}
	return nil
}

func (p *Postgres) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT entity_id FROM trust_records`)
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

func (p *Postgres) Query(ctx context.Context, filter Filter) ([]*trust.TrustRecord, error) {
	query, args, err := buildRecordQuery(filter, dialectPostgres)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*trust.TrustRecord
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(id, string(blob))
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

func (p *Postgres) Exists(ctx context.Context, entityID string) (bool, error) {
	var one int
	row := p.db.QueryRowContext(ctx, `SELECT 1 FROM trust_records WHERE entity_id = $1`, entityID)
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("store: exists %s: %w", entityID, err)
	}
	return true, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	row := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trust_records`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count records: %w", err)
	}
	return n, nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM trust_records`); err != nil {
		return fmt.Errorf("store: clear records: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
