package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// EscalationRepository implements port.EscalationRepository
type EscalationRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db *sqldb.DB, logger *zap.Logger) port.EscalationRepository {
	return &EscalationRepository{
		db:     db,
		logger: logger,
	}
}

// MarkNotified records that the step's escalation was announced.
// Returns false when another scan got there first.
func (r *EscalationRepository) MarkNotified(ctx context.Context, stepID string, at time.Time) (bool, error) {
	query := r.db.Rebind(`
		INSERT INTO step_escalations (step_id, notified_at)
		VALUES (?, ?)
		ON CONFLICT (step_id) DO NOTHING
	`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, stepID, at.UTC())
	if err != nil {
		r.logger.Error("Failed to mark escalation", zap.String("step_id", stepID), zap.Error(err))
		return false, fmt.Errorf("failed to mark escalation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// Verify interface compliance
var _ port.EscalationRepository = (*EscalationRepository)(nil)
