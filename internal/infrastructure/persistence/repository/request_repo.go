package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const requestColumns = `id, title, description, metadata_kind, metadata, creator_id, org_id,
	department_id, status, template_id, template_version, version,
	created_at, updated_at, published_at, completed_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqldb.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new request row with version 1
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	kind, body, err := entity.EncodeMetadata(req.Metadata)
	if err != nil {
		return err
	}
	if req.Version == 0 {
		req.Version = 1
	}

	query := r.db.Rebind(`
		INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		req.ID,
		req.Title,
		req.Description,
		string(kind),
		string(body),
		req.CreatorID,
		req.OrgID,
		req.DepartmentID,
		string(req.Status),
		req.TemplateID,
		req.TemplateVersion,
		req.Version,
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
		nullTime(req.PublishedAt),
		nullTime(req.CompletedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

// GetByID retrieves a request row by ID, without steps
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	query := r.db.Rebind(`SELECT ` + requestColumns + ` FROM requests WHERE id = ?`)

	req, err := scanRequest(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return req, nil
}

// Update writes the request only if nobody else wrote it since expectedVersion was read
func (r *RequestRepository) Update(ctx context.Context, req *entity.Request, expectedVersion int64) error {
	kind, body, err := entity.EncodeMetadata(req.Metadata)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE requests SET
			title = ?, description = ?, metadata_kind = ?, metadata = ?,
			status = ?, template_id = ?, template_version = ?,
			version = version + 1, updated_at = ?, published_at = ?, completed_at = ?
		WHERE id = ? AND version = ?
	`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.Title,
		req.Description,
		string(kind),
		string(body),
		string(req.Status),
		req.TemplateID,
		req.TemplateVersion,
		req.UpdatedAt.UTC(),
		nullTime(req.PublishedAt),
		nullTime(req.CompletedAt),
		req.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: request %s is no longer at version %d", port.ErrConcurrentUpdate, req.ID, expectedVersion)
	}

	req.Version = expectedVersion + 1
	return nil
}

// List retrieves requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.CreatorID != "" {
		conditions = append(conditions, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	return r.query(ctx, r.db.Rebind(query), args...)
}

// ListByPendingApprover returns open requests with a pending step assigned to userID
func (r *RequestRepository) ListByPendingApprover(ctx context.Context, userID string) ([]*entity.Request, error) {
	query := r.db.Rebind(`
		SELECT ` + requestColumns + ` FROM requests
		WHERE status IN ('pending', 'in_review')
			AND id IN (
				SELECT request_id FROM approval_steps
				WHERE approver_id = ? AND status = 'pending'
			)
		ORDER BY created_at ASC
	`)

	return r.query(ctx, query, userID)
}

func (r *RequestRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Request, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var (
		req        entity.Request
		kind, body string
		status     string
		published  sql.NullTime
		completed  sql.NullTime
	)

	err := row.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&kind,
		&body,
		&req.CreatorID,
		&req.OrgID,
		&req.DepartmentID,
		&status,
		&req.TemplateID,
		&req.TemplateVersion,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
		&published,
		&completed,
	)
	if err != nil {
		return nil, err
	}

	req.Metadata, err = entity.DecodeMetadata(entity.MetadataKind(kind), []byte(body))
	if err != nil {
		return nil, err
	}
	req.Status = entity.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	req.PublishedAt = timePtr(published)
	req.CompletedAt = timePtr(completed)

	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
