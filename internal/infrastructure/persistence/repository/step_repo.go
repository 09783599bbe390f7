package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const stepColumns = `id, request_id, name, step_order, approver_id, approver_spec,
	is_parallel, require_all_parallel, require_comment, status,
	decided_by, decided_at, comment, escalation_after_hours, escalation_to, activated_at`

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sqldb.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a freshly materialized ledger, keeping ledger position
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	query := r.db.Rebind(`
		INSERT INTO approval_steps (` + stepColumns + `, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	exec := r.db.Executor(ctx)
	for i, s := range steps {
		spec, err := json.Marshal(s.Approver.Spec)
		if err != nil {
			return fmt.Errorf("failed to encode approver spec: %w", err)
		}

		var afterHours interface{}
		var escalateTo interface{}
		if s.Escalation != nil {
			afterHours = s.Escalation.AfterHours
			escalateTo = nullString(s.Escalation.EscalateTo)
		}

		decidedBy, decidedAt, comment := decisionArgs(s.Decision)

		_, err = exec.ExecContext(ctx, query,
			s.ID,
			s.RequestID,
			s.Name,
			s.Order,
			s.Approver.UserID,
			string(spec),
			s.IsParallel,
			s.RequireAllParallel,
			s.RequireComment,
			string(s.Status),
			decidedBy,
			decidedAt,
			comment,
			afterHours,
			escalateTo,
			nullTime(s.ActivatedAt),
			i,
		)
		if err != nil {
			r.logger.Error("Failed to create step",
				zap.String("request_id", s.RequestID),
				zap.String("step_id", s.ID),
				zap.Error(err))
			return fmt.Errorf("failed to create step: %w", err)
		}
	}

	return nil
}

// GetByRequestID retrieves the ledger of a request in order
func (r *StepRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.ApprovalStep, error) {
	query := r.db.Rebind(`
		SELECT ` + stepColumns + ` FROM approval_steps
		WHERE request_id = ?
		ORDER BY step_order ASC, position ASC
	`)

	return r.query(ctx, query, requestID)
}

// UpdateFrom writes status and decision if the stored status is still from
func (r *StepRepository) UpdateFrom(ctx context.Context, step *entity.ApprovalStep, from entity.StepStatus) error {
	query := r.db.Rebind(`
		UPDATE approval_steps SET
			status = ?, decided_by = ?, decided_at = ?, comment = ?, activated_at = ?
		WHERE id = ? AND status = ?
	`)

	decidedBy, decidedAt, comment := decisionArgs(step.Decision)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(step.Status),
		decidedBy,
		decidedAt,
		comment,
		nullTime(step.ActivatedAt),
		step.ID,
		string(from),
	)
	if err != nil {
		r.logger.Error("Failed to update step", zap.String("step_id", step.ID), zap.Error(err))
		return fmt.Errorf("failed to update step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: step %s is no longer %s", port.ErrConcurrentUpdate, step.ID, from)
	}

	return nil
}

// ListPendingWithEscalation returns activated pending steps that carry escalation config
func (r *StepRepository) ListPendingWithEscalation(ctx context.Context) ([]*entity.ApprovalStep, error) {
	query := r.db.Rebind(`
		SELECT ` + stepColumns + ` FROM approval_steps
		WHERE status = 'pending'
			AND escalation_after_hours IS NOT NULL
			AND activated_at IS NOT NULL
		ORDER BY activated_at ASC
	`)

	return r.query(ctx, query)
}

func (r *StepRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalStep, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query steps", zap.Error(err))
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, s)
	}

	return steps, rows.Err()
}

func scanStep(row rowScanner) (*entity.ApprovalStep, error) {
	var (
		s          entity.ApprovalStep
		spec       string
		status     string
		decidedBy  sql.NullString
		decidedAt  sql.NullTime
		comment    sql.NullString
		afterHours sql.NullInt64
		escalateTo sql.NullString
		activated  sql.NullTime
	)

	err := row.Scan(
		&s.ID,
		&s.RequestID,
		&s.Name,
		&s.Order,
		&s.Approver.UserID,
		&spec,
		&s.IsParallel,
		&s.RequireAllParallel,
		&s.RequireComment,
		&status,
		&decidedBy,
		&decidedAt,
		&comment,
		&afterHours,
		&escalateTo,
		&activated,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(spec), &s.Approver.Spec); err != nil {
		return nil, fmt.Errorf("failed to decode approver spec: %w", err)
	}
	s.Status = entity.StepStatus(status)
	s.ActivatedAt = timePtr(activated)

	if decidedBy.Valid {
		s.Decision = &entity.StepDecision{
			DecidedBy: decidedBy.String,
			Comment:   comment.String,
		}
		if decidedAt.Valid {
			s.Decision.DecidedAt = decidedAt.Time.UTC()
		}
	}
	if afterHours.Valid {
		s.Escalation = &entity.Escalation{
			AfterHours: int(afterHours.Int64),
			EscalateTo: escalateTo.String,
		}
	}

	return &s, nil
}

func decisionArgs(d *entity.StepDecision) (decidedBy, decidedAt, comment interface{}) {
	if d == nil {
		return nil, nil, nil
	}
	return d.DecidedBy, d.DecidedAt.UTC(), d.Comment
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
