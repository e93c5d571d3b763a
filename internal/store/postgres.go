package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-project/custodia/internal/core"
)

// pgDB is the slice of pgxpool.Pool the store actually uses; narrowing it
// keeps the store unit-testable against a fake without a live database.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists decisions, audit chains, and checkpoints. It implements
// core.DecisionStore, core.AuditEntryStore, and core.CheckpointStore.
// Timestamps are truncated to microseconds before writing, matching the
// precision Postgres stores, so hash material survives a round trip.
type Postgres struct {
	db pgDB
}

func NewPostgres(db pgDB) *Postgres {
	return &Postgres{db: db}
}

// NewPostgresPool connects with bounded retries; container setups routinely
// start the service before the database accepts connections.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for i := 0; i < 15; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			lastErr = err
			time.Sleep(2 * time.Second)
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		lastErr = err
		pool.Close()
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("postgres ping retries exhausted: %w", lastErr)
}

// Migrate creates the schema. Idempotent.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id                 TEXT PRIMARY KEY,
	created_at         TIMESTAMPTZ NOT NULL,
	actor              TEXT NOT NULL,
	resource           TEXT NOT NULL,
	action             TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	reason             TEXT NOT NULL,
	policies_evaluated TEXT[] NOT NULL DEFAULT '{}',
	latency_ms         BIGINT NOT NULL DEFAULT 0,
	failure_mode       TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL,
	valid_from         TIMESTAMPTZ,
	expires_at         TIMESTAMPTZ,
	version            INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS decisions_actor_idx ON decisions (actor);
CREATE INDEX IF NOT EXISTS decisions_state_idx ON decisions (state);

CREATE TABLE IF NOT EXISTS audit_entries (
	chain_id   TEXT NOT NULL,
	sequence   BIGINT NOT NULL,
	prev_hash  TEXT NOT NULL,
	entry_hash TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, sequence)
);

CREATE TABLE IF NOT EXISTS audit_checkpoints (
	id            TEXT PRIMARY KEY,
	chain_id      TEXT NOT NULL,
	tail_sequence BIGINT NOT NULL,
	tail_hash     TEXT NOT NULL,
	canonical     TEXT NOT NULL,
	signed        BOOLEAN NOT NULL,
	key_id        TEXT NOT NULL DEFAULT '',
	signature     TEXT NOT NULL DEFAULT '',
	actor_id      TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_checkpoints_chain_idx ON audit_checkpoints (chain_id, created_at);
`

func (s *Postgres) SaveDecision(ctx context.Context, d core.Decision) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO decisions
		(id, created_at, actor, resource, action, outcome, reason, policies_evaluated, latency_ms, failure_mode, state, valid_from, expires_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, d.ID, d.CreatedAt.UTC().Truncate(time.Microsecond), d.Actor, d.Resource, d.Action,
		string(d.Outcome), d.Reason, d.PoliciesEvaluated, d.LatencyMS, string(d.FailureMode),
		string(d.State), d.ValidFrom, d.ExpiresAt, d.Version)
	return err
}

const decisionColumns = `id, created_at, actor, resource, action, outcome, reason, policies_evaluated, latency_ms, failure_mode, state, valid_from, expires_at, version`

func scanDecision(row pgx.Row) (core.Decision, error) {
	var d core.Decision
	var outcome, failureMode, state string
	err := row.Scan(&d.ID, &d.CreatedAt, &d.Actor, &d.Resource, &d.Action, &outcome, &d.Reason,
		&d.PoliciesEvaluated, &d.LatencyMS, &failureMode, &state, &d.ValidFrom, &d.ExpiresAt, &d.Version)
	if err != nil {
		return core.Decision{}, err
	}
	d.Outcome = core.Outcome(outcome)
	d.FailureMode = core.FailureMode(failureMode)
	d.State = core.DecisionState(state)
	return d, nil
}

func (s *Postgres) DecisionByID(ctx context.Context, id string) (core.Decision, error) {
	row := s.db.QueryRow(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id=$1`, id)
	d, err := scanDecision(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Decision{}, fmt.Errorf("decision '%s': %w", id, core.ErrNotFound)
	}
	return d, err
}

func (s *Postgres) TransitionDecision(ctx context.Context, id string, from, to core.DecisionState) error {
	if !from.CanTransition(to) {
		return &core.InvalidTransitionError{Entity: "decision", ID: id, From: string(from), To: string(to)}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE decisions SET state=$3, version=version+1 WHERE id=$1 AND state=$2
	`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// either unknown ID or the state moved underneath us
		cur, err := s.DecisionByID(ctx, id)
		if err != nil {
			return err
		}
		return &core.InvalidTransitionError{Entity: "decision", ID: id, From: string(cur.State), To: string(to)}
	}
	return nil
}

func (s *Postgres) ListDecisions(ctx context.Context, f core.DecisionFilter) ([]core.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Actor != "" {
		query += ` AND actor=` + arg(f.Actor)
	}
	if f.Resource != "" {
		query += ` AND resource=` + arg(f.Resource)
	}
	if f.Outcome != "" {
		query += ` AND outcome=` + arg(string(f.Outcome))
	}
	if !f.From.IsZero() {
		query += ` AND created_at>=` + arg(f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND created_at<=` + arg(f.To.UTC())
	}
	query += ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + arg(f.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func (s *Postgres) DecisionsInState(ctx context.Context, state core.DecisionState, limit int) ([]core.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE state=$1 ORDER BY id ASC`
	args := []any{string(state)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func collectDecisions(rows pgx.Rows) ([]core.Decision, error) {
	var out []core.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) TailEntry(ctx context.Context, chainID string) (*core.AuditEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT chain_id, sequence, prev_hash, entry_hash, payload, created_at
		FROM audit_entries WHERE chain_id=$1 ORDER BY sequence DESC LIMIT 1
	`, chainID)
	var e core.AuditEntry
	err := row.Scan(&e.ChainID, &e.Sequence, &e.PrevHash, &e.EntryHash, &e.Payload, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// AppendEntry inserts the entry only if it is still the next sequence of its
// chain; a lost race surfaces as a ConcurrencyConflictError for the ledger
// to retry.
func (s *Postgres) AppendEntry(ctx context.Context, e core.AuditEntry) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO audit_entries (chain_id, sequence, prev_hash, entry_hash, payload, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (SELECT 1 FROM audit_entries WHERE chain_id=$1 AND sequence>=$2)
	`, e.ChainID, e.Sequence, e.PrevHash, e.EntryHash, e.Payload, e.CreatedAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &core.ConcurrencyConflictError{ChainID: e.ChainID, Sequence: e.Sequence}
	}
	return nil
}

func (s *Postgres) EntriesFrom(ctx context.Context, chainID string, fromSeq uint64, limit int) ([]core.AuditEntry, error) {
	query := `
		SELECT chain_id, sequence, prev_hash, entry_hash, payload, created_at
		FROM audit_entries WHERE chain_id=$1 AND sequence>=$2 ORDER BY sequence ASC
	`
	args := []any{chainID, fromSeq}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var e core.AuditEntry
		if err := rows.Scan(&e.ChainID, &e.Sequence, &e.PrevHash, &e.EntryHash, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveCheckpoint(ctx context.Context, cp core.AuditCheckpoint) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_checkpoints
		(id, chain_id, tail_sequence, tail_hash, canonical, signed, key_id, signature, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, cp.ID, cp.ChainID, cp.TailSequence, cp.TailHash, cp.Canonical, cp.Signed, cp.KeyID, cp.Signature,
		cp.ActorID, cp.CreatedAt.UTC().Truncate(time.Microsecond))
	return err
}

func (s *Postgres) LatestCheckpoint(ctx context.Context, chainID string) (core.AuditCheckpoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, chain_id, tail_sequence, tail_hash, canonical, signed, key_id, signature, actor_id, created_at
		FROM audit_checkpoints WHERE chain_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1
	`, chainID)
	var cp core.AuditCheckpoint
	err := row.Scan(&cp.ID, &cp.ChainID, &cp.TailSequence, &cp.TailHash, &cp.Canonical, &cp.Signed,
		&cp.KeyID, &cp.Signature, &cp.ActorID, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.AuditCheckpoint{}, fmt.Errorf("chain '%s' has no checkpoints: %w", chainID, core.ErrNotFound)
	}
	return cp, err
}
