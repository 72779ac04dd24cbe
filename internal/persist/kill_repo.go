package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// KillRecord is one permanent enemy death. The ledger keeps outcomes for
// wave scoring; it is never read back into the simulation.
type KillRecord struct {
	RunID       uuid.UUID
	EntityIndex uint32
	EntityGen   uint32
	ClassID     int32
	X, Y, Z     float64
	Tick        uint64
	KilledAt    time.Time
}

var killColumns = []string{
	"run_id", "entity_index", "entity_gen", "class_id",
	"pos_x", "pos_y", "pos_z", "tick", "killed_at",
}

type KillRepo struct {
	db *DB
}

func NewKillRepo(db *DB) *KillRepo {
	return &KillRepo{db: db}
}

// InsertBatch copies a batch of records in one round trip.
func (r *KillRepo) InsertBatch(ctx context.Context, recs []KillRecord) error {
	if len(recs) == 0 {
		return nil
	}
	n, err := r.db.Pool.CopyFrom(ctx, pgx.Identifier{"kill_ledger"}, killColumns,
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			return killRow(recs[i]), nil
		}))
	if err != nil {
		return fmt.Errorf("kill ledger copy: %w", err)
	}
	if int(n) != len(recs) {
		return fmt.Errorf("kill ledger copy: wrote %d of %d rows", n, len(recs))
	}
	return nil
}

// CountRun returns how many kills a run has recorded. Reported once at
// shutdown.
func (r *KillRepo) CountRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM kill_ledger WHERE run_id = $1`, pgRunID(runID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("kill ledger count: %w", err)
	}
	return n, nil
}

// killRow orders a record by killColumns. Index and generation are widened
// to BIGINT so uint32 values never wrap.
func killRow(rec KillRecord) []any {
	return []any{
		pgRunID(rec.RunID),
		int64(rec.EntityIndex),
		int64(rec.EntityGen),
		rec.ClassID,
		rec.X, rec.Y, rec.Z,
		int64(rec.Tick),
		rec.KilledAt,
	}
}

func pgRunID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
