// Package postgres is the durable session store. Schema lives in
// embedded goose migrations and is applied on startup.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lurelab/lure/pkg/engage"
	"github.com/lurelab/lure/pkg/extract"
	"github.com/lurelab/lure/pkg/persona"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements engage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and applies pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func migrate(pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return goose.Up(db, "migrations")
}

// Load implements engage.Store.
func (s *Store) Load(ctx context.Context, id string) (*engage.Session, error) {
	sess := &engage.Session{ID: id}
	var phases string
	err := s.pool.QueryRow(ctx, `
		SELECT channel, status, label, scam_type, confidence, phases, end_reason, created_at, updated_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&sess.Channel, &sess.Status, &sess.Label, &sess.ScamType,
		&sess.Confidence, &phases, &sess.EndReason, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if phases != "" {
		sess.Phases = strings.Split(phases, ",")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, text, at FROM messages
		WHERE session_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m engage.Message
		var role string
		if err := rows.Scan(&role, &m.Text, &m.At); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = persona.Role(role)
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	frows, err := s.pool.Query(ctx, `
		SELECT kind, value, raw FROM findings
		WHERE session_id = $1 ORDER BY kind, value`, id)
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var f extract.Finding
		var kind string
		if err := frows.Scan(&kind, &f.Value, &f.Raw); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Kind = extract.Kind(kind)
		sess.Findings = append(sess.Findings, f)
	}
	if err := frows.Err(); err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}

	return sess, nil
}

// Commit implements engage.Store. The whole turn lands in a single
// transaction: session upsert, both messages, new findings.
func (s *Store) Commit(ctx context.Context, req engage.CommitRequest) error {
	sess := req.Session

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, channel, status, label, scam_type, confidence, phases, end_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			label = EXCLUDED.label,
			scam_type = EXCLUDED.scam_type,
			confidence = EXCLUDED.confidence,
			phases = EXCLUDED.phases,
			end_reason = EXCLUDED.end_reason,
			updated_at = EXCLUDED.updated_at`,
		sess.ID, string(sess.Channel), string(sess.Status), sess.Label, sess.ScamType,
		sess.Confidence, strings.Join(sess.Phases, ","), sess.EndReason,
		createdAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, m := range []engage.Message{req.Inbound, req.Reply} {
		if m.Text == "" {
			continue
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (session_id, role, text, at)
			VALUES ($1, $2, $3, $4)`,
			sess.ID, string(m.Role), m.Text, m.At)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	for _, f := range req.NewFindings {
		_, err = tx.Exec(ctx, `
			INSERT INTO findings (session_id, kind, value, raw)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, kind, value) DO NOTHING`,
			sess.ID, string(f.Kind), f.Value, f.Raw)
		if err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stats implements engage.Store.
func (s *Store) Stats(ctx context.Context) (engage.Stats, error) {
	var st engage.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status != 'completed'),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE label = 'SCAM')
		FROM sessions`,
	).Scan(&st.TotalSessions, &st.ActiveSessions, &st.CompletedSessions, &st.ScamsDetected)
	if err != nil {
		return engage.Stats{}, fmt.Errorf("session stats: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM findings`).Scan(&st.Findings); err != nil {
		return engage.Stats{}, fmt.Errorf("finding stats: %w", err)
	}
	return st, nil
}
