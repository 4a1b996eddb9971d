// Package archive stores finished digests in Postgres.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgallion1/paperdigest/internal/section"
)

var ErrNotFound = errors.New("digest not found")

// Record is one archived digest.
type Record struct {
	ID               int64           `json:"id"`
	JobID            string          `json:"job_id"`
	Title            string          `json:"title"`
	Filename         string          `json:"filename"`
	Model            string          `json:"model"`
	Sections         []section.Entry `json:"sections"`
	Missing          []string        `json:"missing"`
	Summary          string          `json:"summary"`
	Method           string          `json:"method"`
	Conclusion       string          `json:"conclusion"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	CreatedAt        time.Time       `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS digests (
	id                BIGSERIAL PRIMARY KEY,
	job_id            TEXT NOT NULL,
	title             TEXT NOT NULL,
	filename          TEXT NOT NULL,
	model             TEXT NOT NULL DEFAULT '',
	sections          JSONB NOT NULL DEFAULT '[]',
	missing           TEXT[] NOT NULL DEFAULT '{}',
	summary           TEXT NOT NULL DEFAULT '',
	method            TEXT NOT NULL DEFAULT '',
	conclusion        TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS digests_job_id_idx ON digests (job_id);
CREATE INDEX IF NOT EXISTS digests_created_at_idx ON digests (created_at DESC);`

// Open connects and makes sure the schema exists.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Save inserts r and returns its id.
func (s *Store) Save(ctx context.Context, r Record) (int64, error) {
	secs, err := json.Marshal(nonNil(r.Sections))
	if err != nil {
		return 0, fmt.Errorf("encode sections: %w", err)
	}
	missing := r.Missing
	if missing == nil {
		missing = []string{}
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO digests (job_id, title, filename, model, sections, missing,
			summary, method, conclusion, prompt_tokens, completion_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		r.JobID, r.Title, r.Filename, r.Model, secs, missing,
		r.Summary, r.Method, r.Conclusion, r.PromptTokens, r.CompletionTokens,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert digest: %w", err)
	}
	return id, nil
}

const selectCols = `id, job_id, title, filename, model, sections, missing,
	summary, method, conclusion, prompt_tokens, completion_tokens, created_at`

func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectCols+` FROM digests WHERE id = $1`, id)
	r, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// Recent returns the newest digests first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT `+selectCols+` FROM digests ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scan(row pgx.Row) (*Record, error) {
	var r Record
	var secs []byte
	err := row.Scan(&r.ID, &r.JobID, &r.Title, &r.Filename, &r.Model, &secs, &r.Missing,
		&r.Summary, &r.Method, &r.Conclusion, &r.PromptTokens, &r.CompletionTokens, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(secs, &r.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return &r, nil
}

func nonNil(e []section.Entry) []section.Entry {
	if e == nil {
		return []section.Entry{}
	}
	return e
}
