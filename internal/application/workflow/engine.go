// Package workflow runs progression operations against the store: it loads a request and its
// ledger inside one transaction, applies the pure progression function, persists the result with
// conditional writes and hands the emitted events to the dispatcher after commit.
package workflow

import (
	"context"
	"time"

	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

// RoleAdmin is the role allowed to skip steps
const RoleAdmin = "admin"

// Engine orchestrates approval progression for persisted requests
type Engine interface {
	// Publish materializes the ledger of a draft from a stored template
	Publish(ctx context.Context, cmd PublishCommand) (*entity.Request, error)

	// Decide records an approver's decision
	Decide(ctx context.Context, requestID string, cmd progression.DecisionCommand) (*entity.Request, error)

	// Withdraw cancels an undecided request on behalf of its creator
	Withdraw(ctx context.Context, requestID, actorID string) (*entity.Request, error)

	// Skip is the administrative override that skips an undecided step
	Skip(ctx context.Context, cmd SkipCommand) (*entity.Request, error)

	// Load returns a request together with its ledger
	Load(ctx context.Context, requestID string) (*entity.Request, error)
}

// PublishCommand asks for a draft to be published against a template
type PublishCommand struct {
	RequestID  string
	TemplateID string
	ActorID    string
}

// SkipCommand asks for one step to be skipped
type SkipCommand struct {
	RequestID  string
	StepID     string
	ActorID    string
	ActorRoles []string
	Reason     string
}

// ApproverDirectory resolves approvers and the organizational context of a creator
type ApproverDirectory interface {
	progression.Resolver
	OrgContextFor(ctx context.Context, userID string) (progression.OrgContext, error)
}

// Recorder receives operation metrics
type Recorder interface {
	ObserveOperation(operation string, err error, elapsed time.Duration)
	RequestCompleted(status entity.RequestStatus)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
