package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

// TemplateService manages versioned workflow templates
type TemplateService interface {
	// Create stores a new version of the named template
	Create(ctx context.Context, name, createdBy string, steps []entity.StepSpec) (*entity.Template, error)
	Get(ctx context.Context, id string) (*entity.Template, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Template, error)
}

type templateServiceImpl struct {
	templateRepo port.TemplateRepository
	txManager    port.TransactionManager
	logger       Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(templateRepo port.TemplateRepository, txManager port.TransactionManager, logger Logger) TemplateService {
	return &templateServiceImpl{
		templateRepo: templateRepo,
		txManager:    txManager,
		logger:       logger,
	}
}

// Create validates the steps and stores them as the next version of name.
// Requests published earlier keep the snapshot they were materialized from.
func (s *templateServiceImpl) Create(ctx context.Context, name, createdBy string, steps []entity.StepSpec) (*entity.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrInvalidInput)
	}
	if err := progression.ValidateTemplate(steps); err != nil {
		return nil, err
	}

	tmpl := &entity.Template{
		ID:        uuid.NewString(),
		Name:      name,
		Steps:     progression.SortedSpecs(steps),
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		latest, err := s.templateRepo.LatestVersion(txCtx, name)
		if err != nil {
			return fmt.Errorf("latest version: %w", err)
		}
		tmpl.Version = latest + 1
		return s.templateRepo.Create(txCtx, tmpl)
	})
	if err != nil {
		s.logger.Error("Failed to create template", "error", err, "name", name)
		return nil, err
	}

	s.logger.Info("Template created", "template_id", tmpl.ID, "name", name, "version", tmpl.Version, "steps", len(steps))
	return tmpl, nil
}

// Get returns a template by id
func (s *templateServiceImpl) Get(ctx context.Context, id string) (*entity.Template, error) {
	tmpl, err := s.templateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: template %s", port.ErrNotFound, id)
	}
	return tmpl, nil
}

// List returns templates, newest first
func (s *templateServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.Template, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.templateRepo.List(ctx, limit, offset)
}
