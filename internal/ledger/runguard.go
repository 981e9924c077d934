package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// ErrAlreadyProcessed indicates the run key was recorded before.
var ErrAlreadyProcessed = errors.New("ledger: run already processed")

// RunGuard persists processed job keys so scheduled work runs once per key.
type RunGuard struct {
	pool *pgxpool.Pool
}

// NewRunGuard constructs the guard.
func NewRunGuard(pool *pgxpool.Pool) *RunGuard {
	return &RunGuard{pool: pool}
}

// CheckAndInsert records key for module, failing with ErrAlreadyProcessed on a repeat.
func (g *RunGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	if g == nil || g.pool == nil {
		return errors.New("ledger: run guard not initialised")
	}
	if key == "" {
		return errors.New("ledger: run key required")
	}
	if module == "" {
		return errors.New("ledger: run module required")
	}
	_, err := g.pool.Exec(ctx, `INSERT INTO job_runs (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now().UTC())
	return classifyInsertError(err)
}

// Release removes a key so a failed run can be retried.
func (g *RunGuard) Release(ctx context.Context, key string) error {
	if g == nil || g.pool == nil {
		return nil
	}
	if key == "" {
		return errors.New("ledger: run key required")
	}
	_, err := g.pool.Exec(ctx, `DELETE FROM job_runs WHERE key = $1`, key)
	return err
}

// Cleanup removes keys older than retention.
func (g *RunGuard) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if g == nil || g.pool == nil {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := g.pool.Exec(ctx, `DELETE FROM job_runs WHERE created_at < $1`, cutoff)
	return err
}

func classifyInsertError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyProcessed
	}
	return err
}
