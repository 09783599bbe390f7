package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqldb.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a history record and sets its generated ID.
// pgx has no LastInsertId, so the id comes back through RETURNING.
func (r *HistoryRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	query := r.db.Rebind(`
		INSERT INTO request_history (
			request_id, step_id, actor_id, action,
			previous_status, new_status, comment, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		entry.RequestID,
		entry.StepID,
		entry.ActorID,
		entry.Action,
		string(entry.PreviousStatus),
		string(entry.NewStatus),
		entry.Comment,
		entry.OccurredAt.UTC(),
	).Scan(&entry.ID)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("request_id", entry.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	return nil
}

// GetByRequestID retrieves the audit trail of a request, oldest first
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error) {
	query := r.db.Rebind(`
		SELECT id, request_id, step_id, actor_id, action,
			previous_status, new_status, comment, occurred_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY id ASC
	`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get history by request ID", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.HistoryEntry
	for rows.Next() {
		var (
			record     entity.HistoryEntry
			prev, next string
		)
		err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.StepID,
			&record.ActorID,
			&record.Action,
			&prev,
			&next,
			&record.Comment,
			&record.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		record.PreviousStatus = entity.RequestStatus(prev)
		record.NewStatus = entity.RequestStatus(next)
		record.OccurredAt = record.OccurredAt.UTC()
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
