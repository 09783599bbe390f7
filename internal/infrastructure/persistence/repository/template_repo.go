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

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sqldb.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a template. Step definitions are kept as a JSON array.
func (r *TemplateRepository) Create(ctx context.Context, tmpl *entity.Template) error {
	steps, err := json.Marshal(tmpl.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode template steps: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO templates (id, name, version, steps, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		tmpl.ID,
		tmpl.Name,
		tmpl.Version,
		string(steps),
		tmpl.CreatedBy,
		tmpl.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("name", tmpl.Name), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

// GetByID retrieves a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*entity.Template, error) {
	query := r.db.Rebind(`
		SELECT id, name, version, steps, created_by, created_at
		FROM templates
		WHERE id = ?
	`)

	tmpl, err := scanTemplate(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return tmpl, nil
}

// List retrieves templates with pagination
func (r *TemplateRepository) List(ctx context.Context, limit, offset int) ([]*entity.Template, error) {
	query := r.db.Rebind(`
		SELECT id, name, version, steps, created_by, created_at
		FROM templates
		ORDER BY name ASC, version DESC
		LIMIT ? OFFSET ?
	`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*entity.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}

	return templates, rows.Err()
}

// LatestVersion returns the highest version stored under name
func (r *TemplateRepository) LatestVersion(ctx context.Context, name string) (int, error) {
	query := r.db.Rebind(`SELECT COALESCE(MAX(version), 0) FROM templates WHERE name = ?`)

	var version int
	if err := r.db.Executor(ctx).QueryRowContext(ctx, query, name).Scan(&version); err != nil {
		r.logger.Error("Failed to get latest template version", zap.String("name", name), zap.Error(err))
		return 0, fmt.Errorf("failed to get latest template version: %w", err)
	}

	return version, nil
}

func scanTemplate(row rowScanner) (*entity.Template, error) {
	var (
		tmpl  entity.Template
		steps string
	)

	if err := row.Scan(&tmpl.ID, &tmpl.Name, &tmpl.Version, &steps, &tmpl.CreatedBy, &tmpl.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &tmpl.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode template steps: %w", err)
	}
	tmpl.CreatedAt = tmpl.CreatedAt.UTC()

	return &tmpl, nil
}

// Verify interface compliance
var _ port.TemplateRepository = (*TemplateRepository)(nil)
