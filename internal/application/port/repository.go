package port

import (
	"context"
	"time"

	"github.com/garyjia/approval-flow/internal/domain/entity"
)

// RequestRepository defines persistence operations for the request row.
// Steps are stored separately through StepRepository.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id string) (*entity.Request, error)

	// Update writes the request if its stored version still equals expectedVersion,
	// and bumps the version. Returns ErrConcurrentUpdate otherwise.
	Update(ctx context.Context, req *entity.Request, expectedVersion int64) error

	List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error)

	// ListByPendingApprover returns requests with an open step assigned to userID
	ListByPendingApprover(ctx context.Context, userID string) ([]*entity.Request, error)
}

// StepRepository defines persistence operations for ledger rows
type StepRepository interface {
	CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.ApprovalStep, error)

	// UpdateFrom writes status and decision only if the stored status still equals from.
	// Returns ErrConcurrentUpdate otherwise.
	UpdateFrom(ctx context.Context, step *entity.ApprovalStep, from entity.StepStatus) error

	// ListPendingWithEscalation returns pending steps that carry escalation config
	ListPendingWithEscalation(ctx context.Context) ([]*entity.ApprovalStep, error)
}

// TemplateRepository defines persistence operations for workflow templates
type TemplateRepository interface {
	Create(ctx context.Context, tmpl *entity.Template) error
	GetByID(ctx context.Context, id string) (*entity.Template, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Template, error)

	// LatestVersion returns the highest stored version for name, or 0
	LatestVersion(ctx context.Context, name string) (int, error)
}

// HistoryRepository defines persistence operations for the request audit trail
type HistoryRepository interface {
	Create(ctx context.Context, entry *entity.HistoryEntry) error
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error)
}

// DirectoryRepository reads the organization directory used for approver resolution
type DirectoryRepository interface {
	GetUser(ctx context.Context, id string) (*entity.OrgUser, error)
	GetDepartment(ctx context.Context, id string) (*entity.Department, error)
	ListByRole(ctx context.Context, orgID, role string) ([]*entity.OrgUser, error)
	UpsertUser(ctx context.Context, user *entity.OrgUser) error
	UpsertDepartment(ctx context.Context, dept *entity.Department) error
}

// EscalationRepository remembers which steps already announced an escalation
type EscalationRepository interface {
	// MarkNotified records the escalation and returns false if it was already recorded
	MarkNotified(ctx context.Context, stepID string, at time.Time) (bool, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
