package service

import (
	"context"

	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

// Mock repositories

type mockRequestRepo struct {
	createFunc                func(ctx context.Context, req *entity.Request) error
	getByIDFunc               func(ctx context.Context, id string) (*entity.Request, error)
	updateFunc                func(ctx context.Context, req *entity.Request, expectedVersion int64) error
	listFunc                  func(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error)
	listByPendingApproverFunc func(ctx context.Context, userID string) ([]*entity.Request, error)
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.Request) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	req.Version = 1
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockRequestRepo) Update(ctx context.Context, req *entity.Request, expectedVersion int64) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, req, expectedVersion)
	}
	req.Version = expectedVersion + 1
	return nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter entity.RequestFilter) ([]*entity.Request, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return []*entity.Request{}, nil
}

func (m *mockRequestRepo) ListByPendingApprover(ctx context.Context, userID string) ([]*entity.Request, error) {
	if m.listByPendingApproverFunc != nil {
		return m.listByPendingApproverFunc(ctx, userID)
	}
	return []*entity.Request{}, nil
}

type mockStepRepo struct {
	getByRequestIDFunc func(ctx context.Context, requestID string) ([]*entity.ApprovalStep, error)
}

func (m *mockStepRepo) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	return nil
}

func (m *mockStepRepo) GetByRequestID(ctx context.Context, requestID string) ([]*entity.ApprovalStep, error) {
	if m.getByRequestIDFunc != nil {
		return m.getByRequestIDFunc(ctx, requestID)
	}
	return []*entity.ApprovalStep{}, nil
}

func (m *mockStepRepo) UpdateFrom(ctx context.Context, step *entity.ApprovalStep, from entity.StepStatus) error {
	return nil
}

func (m *mockStepRepo) ListPendingWithEscalation(ctx context.Context) ([]*entity.ApprovalStep, error) {
	return nil, nil
}

type mockHistoryRepo struct {
	entries    []*entity.HistoryEntry
	createFunc func(ctx context.Context, entry *entity.HistoryEntry) error
}

func (m *mockHistoryRepo) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, entry)
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) GetByRequestID(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error) {
	return m.entries, nil
}

type mockDirectoryRepo struct {
	users map[string]*entity.OrgUser
}

func (m *mockDirectoryRepo) GetUser(ctx context.Context, id string) (*entity.OrgUser, error) {
	return m.users[id], nil
}

func (m *mockDirectoryRepo) GetDepartment(ctx context.Context, id string) (*entity.Department, error) {
	return nil, nil
}

func (m *mockDirectoryRepo) ListByRole(ctx context.Context, orgID, role string) ([]*entity.OrgUser, error) {
	return nil, nil
}

func (m *mockDirectoryRepo) UpsertUser(ctx context.Context, user *entity.OrgUser) error { return nil }

func (m *mockDirectoryRepo) UpsertDepartment(ctx context.Context, dept *entity.Department) error {
	return nil
}

type mockTemplateRepo struct {
	created           []*entity.Template
	latestVersionFunc func(ctx context.Context, name string) (int, error)
	getByIDFunc       func(ctx context.Context, id string) (*entity.Template, error)
}

func (m *mockTemplateRepo) Create(ctx context.Context, tmpl *entity.Template) error {
	m.created = append(m.created, tmpl)
	return nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id string) (*entity.Template, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTemplateRepo) List(ctx context.Context, limit, offset int) ([]*entity.Template, error) {
	return m.created, nil
}

func (m *mockTemplateRepo) LatestVersion(ctx context.Context, name string) (int, error) {
	if m.latestVersionFunc != nil {
		return m.latestVersionFunc(ctx, name)
	}
	return 0, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockPublisher struct {
	name        string
	published   []*event.Event
	publishFunc func(ctx context.Context, e *event.Event) error
}

func (m *mockPublisher) Publish(ctx context.Context, e *event.Event) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, e)
	}
	m.published = append(m.published, e)
	return nil
}

func (m *mockPublisher) Name() string { return m.name }

type sentMessage struct {
	receiver string
	content  string
}

type mockMessageSender struct {
	sent         []sentMessage
	sendTextFunc func(ctx context.Context, receiverID, content string) error
}

func (m *mockMessageSender) SendText(ctx context.Context, receiverID, content string) error {
	if m.sendTextFunc != nil {
		return m.sendTextFunc(ctx, receiverID, content)
	}
	m.sent = append(m.sent, sentMessage{receiver: receiverID, content: content})
	return nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
