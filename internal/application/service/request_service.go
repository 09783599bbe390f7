package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/ledger"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ErrInvalidInput is returned when a command is missing required fields
var ErrInvalidInput = errors.New("invalid input")

// DraftInput carries the editable fields of a draft request
type DraftInput struct {
	Title        string
	Description  string
	Metadata     entity.Metadata
	OrgID        string
	DepartmentID string
}

// InboxItem is a request waiting on the caller together with the caller's pending step
type InboxItem struct {
	Request *entity.Request      `json:"request"`
	Step    *entity.ApprovalStep `json:"step"`
}

// RequestService manages draft requests and read models.
// Status changes after publish go through the workflow engine.
type RequestService interface {
	CreateDraft(ctx context.Context, creatorID string, input DraftInput) (*entity.Request, error)
	UpdateDraft(ctx context.Context, id, actorID string, input DraftInput) (*entity.Request, error)
	Get(ctx context.Context, id string) (*entity.Request, error)
	List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error)
	Inbox(ctx context.Context, userID string) ([]InboxItem, error)
	History(ctx context.Context, id string) ([]*entity.HistoryEntry, error)
}

type requestServiceImpl struct {
	requestRepo   port.RequestRepository
	stepRepo      port.StepRepository
	historyRepo   port.HistoryRepository
	directoryRepo port.DirectoryRepository
	txManager     port.TransactionManager
	logger        Logger
	now           func() time.Time
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requestRepo port.RequestRepository,
	stepRepo port.StepRepository,
	historyRepo port.HistoryRepository,
	directoryRepo port.DirectoryRepository,
	txManager port.TransactionManager,
	logger Logger,
) RequestService {
	return &requestServiceImpl{
		requestRepo:   requestRepo,
		stepRepo:      stepRepo,
		historyRepo:   historyRepo,
		directoryRepo: directoryRepo,
		txManager:     txManager,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateDraft validates the input and stores a new draft
func (s *requestServiceImpl) CreateDraft(ctx context.Context, creatorID string, input DraftInput) (*entity.Request, error) {
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	if err := validateDraft(&input); err != nil {
		return nil, err
	}

	// Org context defaults to the creator's directory entry
	if input.OrgID == "" || input.DepartmentID == "" {
		user, err := s.directoryRepo.GetUser(ctx, creatorID)
		if err != nil {
			return nil, fmt.Errorf("get creator: %w", err)
		}
		if user != nil {
			if input.OrgID == "" {
				input.OrgID = user.OrgID
			}
			if input.DepartmentID == "" {
				input.DepartmentID = user.DepartmentID
			}
		}
	}

	now := s.now()
	req := &entity.Request{
		ID:           uuid.NewString(),
		Title:        input.Title,
		Description:  input.Description,
		Metadata:     input.Metadata,
		CreatorID:    creatorID,
		OrgID:        input.OrgID,
		DepartmentID: input.DepartmentID,
		Status:       entity.RequestStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return s.historyRepo.Create(txCtx, &entity.HistoryEntry{
			RequestID:  req.ID,
			ActorID:    creatorID,
			Action:     entity.ActionCreated,
			NewStatus:  req.Status,
			OccurredAt: now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create draft", "error", err, "creator_id", creatorID)
		return nil, err
	}

	s.logger.Info("Draft created", "request_id", req.ID, "creator_id", creatorID, "kind", req.Metadata.Kind())
	return req, nil
}

// UpdateDraft replaces the editable fields of a draft owned by actorID
func (s *requestServiceImpl) UpdateDraft(ctx context.Context, id, actorID string, input DraftInput) (*entity.Request, error) {
	if err := validateDraft(&input); err != nil {
		return nil, err
	}

	var updated *entity.Request
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get request: %w", err)
		}
		if req == nil {
			return fmt.Errorf("%w: request %s", port.ErrNotFound, id)
		}
		if req.Status != entity.RequestStatusDraft {
			return fmt.Errorf("%w: only drafts can be edited", progression.ErrInvalidState)
		}
		if req.CreatorID != actorID {
			return fmt.Errorf("%w: only the creator can edit a draft", progression.ErrForbidden)
		}

		expected := req.Version
		req.Title = input.Title
		req.Description = input.Description
		req.Metadata = input.Metadata
		if input.OrgID != "" {
			req.OrgID = input.OrgID
		}
		if input.DepartmentID != "" {
			req.DepartmentID = input.DepartmentID
		}
		req.UpdatedAt = s.now()

		if err := s.requestRepo.Update(txCtx, req, expected); err != nil {
			return err
		}
		updated = req

		return s.historyRepo.Create(txCtx, &entity.HistoryEntry{
			RequestID:      req.ID,
			ActorID:        actorID,
			Action:         entity.ActionUpdated,
			PreviousStatus: req.Status,
			NewStatus:      req.Status,
			OccurredAt:     req.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Get returns a request with its ledger
func (s *requestServiceImpl) Get(ctx context.Context, id string) (*entity.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %s", port.ErrNotFound, id)
	}

	steps, err := s.stepRepo.GetByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	req.Steps = steps

	return req, nil
}

// List returns requests matching the filter, without ledgers
func (s *requestServiceImpl) List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	return s.requestRepo.List(ctx, filter)
}

// Inbox returns the requests whose active group holds a pending step for userID.
// The repository narrows candidates; the ledger decides.
func (s *requestServiceImpl) Inbox(ctx context.Context, userID string) ([]InboxItem, error) {
	candidates, err := s.requestRepo.ListByPendingApprover(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	items := make([]InboxItem, 0, len(candidates))
	for _, req := range candidates {
		steps, err := s.stepRepo.GetByRequestID(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("get steps: %w", err)
		}
		req.Steps = steps

		if step := ledger.PendingFor(steps, userID); step != nil {
			items = append(items, InboxItem{Request: req, Step: step})
		}
	}

	return items, nil
}

// History returns the audit trail of a request
func (s *requestServiceImpl) History(ctx context.Context, id string) ([]*entity.HistoryEntry, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %s", port.ErrNotFound, id)
	}
	return s.historyRepo.GetByRequestID(ctx, id)
}

func validateDraft(input *DraftInput) error {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.Metadata == nil {
		input.Metadata = entity.GenericMetadata{}
	}
	return input.Metadata.Validate()
}
