package http

import (
	"context"

	"github.com/garyjia/approval-flow/internal/application/report"
	"github.com/garyjia/approval-flow/internal/application/service"
	"github.com/garyjia/approval-flow/internal/application/workflow"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

type mockEngine struct {
	publishFunc  func(ctx context.Context, cmd workflow.PublishCommand) (*entity.Request, error)
	decideFunc   func(ctx context.Context, requestID string, cmd progression.DecisionCommand) (*entity.Request, error)
	withdrawFunc func(ctx context.Context, requestID, actorID string) (*entity.Request, error)
	skipFunc     func(ctx context.Context, cmd workflow.SkipCommand) (*entity.Request, error)
	loadFunc     func(ctx context.Context, requestID string) (*entity.Request, error)
}

func (m *mockEngine) Publish(ctx context.Context, cmd workflow.PublishCommand) (*entity.Request, error) {
	return m.publishFunc(ctx, cmd)
}

func (m *mockEngine) Decide(ctx context.Context, requestID string, cmd progression.DecisionCommand) (*entity.Request, error) {
	return m.decideFunc(ctx, requestID, cmd)
}

func (m *mockEngine) Withdraw(ctx context.Context, requestID, actorID string) (*entity.Request, error) {
	return m.withdrawFunc(ctx, requestID, actorID)
}

func (m *mockEngine) Skip(ctx context.Context, cmd workflow.SkipCommand) (*entity.Request, error) {
	return m.skipFunc(ctx, cmd)
}

func (m *mockEngine) Load(ctx context.Context, requestID string) (*entity.Request, error) {
	return m.loadFunc(ctx, requestID)
}

type mockRequests struct {
	createFunc  func(ctx context.Context, creatorID string, input service.DraftInput) (*entity.Request, error)
	updateFunc  func(ctx context.Context, id, actorID string, input service.DraftInput) (*entity.Request, error)
	getFunc     func(ctx context.Context, id string) (*entity.Request, error)
	listFunc    func(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error)
	inboxFunc   func(ctx context.Context, userID string) ([]service.InboxItem, error)
	historyFunc func(ctx context.Context, id string) ([]*entity.HistoryEntry, error)
}

func (m *mockRequests) CreateDraft(ctx context.Context, creatorID string, input service.DraftInput) (*entity.Request, error) {
	return m.createFunc(ctx, creatorID, input)
}

func (m *mockRequests) UpdateDraft(ctx context.Context, id, actorID string, input service.DraftInput) (*entity.Request, error) {
	return m.updateFunc(ctx, id, actorID, input)
}

func (m *mockRequests) Get(ctx context.Context, id string) (*entity.Request, error) {
	return m.getFunc(ctx, id)
}

func (m *mockRequests) List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockRequests) Inbox(ctx context.Context, userID string) ([]service.InboxItem, error) {
	return m.inboxFunc(ctx, userID)
}

func (m *mockRequests) History(ctx context.Context, id string) ([]*entity.HistoryEntry, error) {
	return m.historyFunc(ctx, id)
}

type mockTemplates struct {
	createFunc func(ctx context.Context, name, createdBy string, steps []entity.StepSpec) (*entity.Template, error)
	getFunc    func(ctx context.Context, id string) (*entity.Template, error)
	listFunc   func(ctx context.Context, limit, offset int) ([]*entity.Template, error)
}

func (m *mockTemplates) Create(ctx context.Context, name, createdBy string, steps []entity.StepSpec) (*entity.Template, error) {
	return m.createFunc(ctx, name, createdBy, steps)
}

func (m *mockTemplates) Get(ctx context.Context, id string) (*entity.Template, error) {
	return m.getFunc(ctx, id)
}

func (m *mockTemplates) List(ctx context.Context, limit, offset int) ([]*entity.Template, error) {
	return m.listFunc(ctx, limit, offset)
}

type reportFunc func(ctx context.Context, requestID string) (*report.Report, error)

func (f reportFunc) Build(ctx context.Context, requestID string) (*report.Report, error) {
	return f(ctx, requestID)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
