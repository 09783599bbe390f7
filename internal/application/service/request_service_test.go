package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

func newRequestService(requests *mockRequestRepo, steps *mockStepRepo, history *mockHistoryRepo) RequestService {
	directory := &mockDirectoryRepo{users: map[string]*entity.OrgUser{
		"dev": {ID: "dev", OrgID: "acme", DepartmentID: "eng"},
	}}
	return NewRequestService(requests, steps, history, directory, &mockTxManager{}, &mockLogger{})
}

func TestRequestService_CreateDraft(t *testing.T) {
	tests := []struct {
		name      string
		creatorID string
		input     DraftInput
		wantErr   error
		wantOrg   string
	}{
		{
			name:      "defaults org context from the directory",
			creatorID: "dev",
			input:     DraftInput{Title: "  New laptop ", Metadata: entity.ExpenseMetadata{AmountCents: 150000, Currency: "USD", Category: "hardware"}},
			wantOrg:   "acme",
		},
		{
			name:      "keeps explicit org context",
			creatorID: "dev",
			input:     DraftInput{Title: "Offsite", OrgID: "other"},
			wantOrg:   "other",
		},
		{
			name:      "creator outside the directory",
			creatorID: "contractor",
			input:     DraftInput{Title: "Badge"},
		},
		{
			name:      "missing title",
			creatorID: "dev",
			input:     DraftInput{Title: "   "},
			wantErr:   ErrInvalidInput,
		},
		{
			name:    "missing creator",
			input:   DraftInput{Title: "Badge"},
			wantErr: ErrInvalidInput,
		},
		{
			name:      "invalid metadata",
			creatorID: "dev",
			input:     DraftInput{Title: "Server", Metadata: entity.CapexMetadata{Currency: "USD", CostCenter: "ops"}},
			wantErr:   entity.ErrInvalidMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := &mockHistoryRepo{}
			var stored *entity.Request
			requests := &mockRequestRepo{createFunc: func(ctx context.Context, req *entity.Request) error {
				stored = req
				return nil
			}}

			req, err := newRequestService(requests, &mockStepRepo{}, history).CreateDraft(context.Background(), tt.creatorID, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if stored != nil {
					t.Error("expected nothing to be stored")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if req.Status != entity.RequestStatusDraft || req.ID == "" {
				t.Errorf("expected a draft with an id, got %+v", req)
			}
			if req.Title != "New laptop" && tt.input.Title == "  New laptop " {
				t.Errorf("expected trimmed title, got %q", req.Title)
			}
			if req.OrgID != tt.wantOrg {
				t.Errorf("expected org %q, got %q", tt.wantOrg, req.OrgID)
			}
			if req.Metadata == nil {
				t.Error("expected metadata to default to generic")
			}
			if len(history.entries) != 1 || history.entries[0].Action != entity.ActionCreated {
				t.Errorf("expected a created history entry, got %v", history.entries)
			}
		})
	}
}

func TestRequestService_UpdateDraft(t *testing.T) {
	draft := func() *entity.Request {
		return &entity.Request{ID: "r1", Title: "Old", CreatorID: "dev", Status: entity.RequestStatusDraft, Version: 3, Metadata: entity.GenericMetadata{}}
	}

	tests := []struct {
		name    string
		stored  func() *entity.Request
		actorID string
		wantErr error
	}{
		{name: "creator edits draft", stored: draft, actorID: "dev"},
		{name: "unknown request", stored: func() *entity.Request { return nil }, actorID: "dev", wantErr: port.ErrNotFound},
		{name: "someone else", stored: draft, actorID: "intruder", wantErr: progression.ErrForbidden},
		{
			name: "published request",
			stored: func() *entity.Request {
				r := draft()
				r.Status = entity.RequestStatusPending
				return r
			},
			actorID: "dev",
			wantErr: progression.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var expected int64
			requests := &mockRequestRepo{
				getByIDFunc: func(ctx context.Context, id string) (*entity.Request, error) {
					return tt.stored(), nil
				},
				updateFunc: func(ctx context.Context, req *entity.Request, expectedVersion int64) error {
					expected = expectedVersion
					req.Version = expectedVersion + 1
					return nil
				},
			}

			req, err := newRequestService(requests, &mockStepRepo{}, &mockHistoryRepo{}).UpdateDraft(
				context.Background(), "r1", tt.actorID, DraftInput{Title: "New", Description: "details"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Title != "New" || req.Description != "details" {
				t.Errorf("expected updated fields, got %+v", req)
			}
			if expected != 3 || req.Version != 4 {
				t.Errorf("expected update conditioned on version 3, got %d -> %d", expected, req.Version)
			}
		})
	}
}

func TestRequestService_UpdateDraftConflict(t *testing.T) {
	requests := &mockRequestRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Request, error) {
			return &entity.Request{ID: id, Title: "Old", CreatorID: "dev", Status: entity.RequestStatusDraft, Version: 1, Metadata: entity.GenericMetadata{}}, nil
		},
		updateFunc: func(ctx context.Context, req *entity.Request, expectedVersion int64) error {
			return port.ErrConcurrentUpdate
		},
	}

	_, err := newRequestService(requests, &mockStepRepo{}, &mockHistoryRepo{}).UpdateDraft(context.Background(), "r1", "dev", DraftInput{Title: "New"})
	if !errors.Is(err, port.ErrConcurrentUpdate) {
		t.Errorf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestRequestService_Get(t *testing.T) {
	requests := &mockRequestRepo{getByIDFunc: func(ctx context.Context, id string) (*entity.Request, error) {
		if id == "r1" {
			return &entity.Request{ID: "r1"}, nil
		}
		return nil, nil
	}}
	steps := &mockStepRepo{getByRequestIDFunc: func(ctx context.Context, requestID string) ([]*entity.ApprovalStep, error) {
		return []*entity.ApprovalStep{{ID: "s1", RequestID: requestID, Order: 1, Status: entity.StepStatusPending}}, nil
	}}
	svc := newRequestService(requests, steps, &mockHistoryRepo{})

	req, err := svc.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Steps) != 1 {
		t.Errorf("expected the ledger to be attached, got %d steps", len(req.Steps))
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.History(context.Background(), "missing"); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound from History, got %v", err)
	}
}

func TestRequestService_ListRejectsUnknownStatus(t *testing.T) {
	svc := newRequestService(&mockRequestRepo{}, &mockStepRepo{}, &mockHistoryRepo{})

	if _, err := svc.List(context.Background(), entity.RequestFilter{Status: "archived"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.List(context.Background(), entity.RequestFilter{Status: entity.RequestStatusPending}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequestService_Inbox(t *testing.T) {
	ledgers := map[string][]*entity.ApprovalStep{
		// bob is pending in the active group
		"r1": {
			{ID: "a", Order: 1, Approver: entity.ApproverRef{UserID: "alice"}, Status: entity.StepStatusApproved},
			{ID: "b", Order: 2, Approver: entity.ApproverRef{UserID: "bob"}, Status: entity.StepStatusPending},
		},
		// bob already decided his parallel member; the group still waits on carol
		"r2": {
			{ID: "c", Order: 1, IsParallel: true, RequireAllParallel: true, Approver: entity.ApproverRef{UserID: "bob"}, Status: entity.StepStatusApproved},
			{ID: "d", Order: 1, IsParallel: true, RequireAllParallel: true, Approver: entity.ApproverRef{UserID: "carol"}, Status: entity.StepStatusPending},
		},
	}
	requests := &mockRequestRepo{listByPendingApproverFunc: func(ctx context.Context, userID string) ([]*entity.Request, error) {
		return []*entity.Request{{ID: "r1"}, {ID: "r2"}}, nil
	}}
	steps := &mockStepRepo{getByRequestIDFunc: func(ctx context.Context, requestID string) ([]*entity.ApprovalStep, error) {
		return ledgers[requestID], nil
	}}

	items, err := newRequestService(requests, steps, &mockHistoryRepo{}).Inbox(context.Background(), "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Request.ID != "r1" || items[0].Step.ID != "b" {
		t.Errorf("expected only r1/b, got %+v", items)
	}
}
