package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// CreateOperation starts a new resumable batch operation record, e.g. an
// embedding backfill.
func (d *DB) CreateOperation(ctx context.Context, op types.OperationProgress) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO operations (id, operation_type, scope, total, processed, checkpoint, state, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, op.OperationType, string(op.Scope), op.Total, op.Processed, op.Checkpoint,
		string(types.OperationRunning), now, now,
	)
	if err != nil {
		return "", storage.WrapDBError("create_operation", err)
	}
	return id, nil
}

// UpdateOperationCheckpoint records progress and a resumable checkpoint
// blob before each batch, so a crash resumes from the last committed
// batch rather than from the beginning.
func (d *DB) UpdateOperationCheckpoint(ctx context.Context, id string, processed int, checkpoint []byte) error {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE operations SET processed = ?, checkpoint = ?, updated_at = ? WHERE id = ?`,
		processed, checkpoint, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return storage.WrapDBError("update_operation_checkpoint", err)
	}
	return requireOneRow(res, "update_operation_checkpoint")
}

// FinishOperation marks a batch operation completed or failed.
func (d *DB) FinishOperation(ctx context.Context, id string, state types.OperationState) error {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE operations SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return storage.WrapDBError("finish_operation", err)
	}
	return requireOneRow(res, "finish_operation")
}

// GetOperation fetches one operation's progress record.
func (d *DB) GetOperation(ctx context.Context, id string) (*types.OperationProgress, error) {
	var op types.OperationProgress
	var scope, state, startedAt, updatedAt string
	err := d.conn.QueryRowContext(ctx, `
		SELECT id, operation_type, scope, total, processed, checkpoint, state, started_at, updated_at
		FROM operations WHERE id = ?`, id,
	).Scan(&op.ID, &op.OperationType, &scope, &op.Total, &op.Processed, &op.Checkpoint, &state, &startedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.WrapDBError("get_operation", err)
	}
	op.Scope = types.Scope(scope)
	op.State = types.OperationState(state)
	op.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	op.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &op, nil
}
