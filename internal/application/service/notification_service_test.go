package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/approval-flow/internal/application/dispatcher"
	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

func newNotificationFixture(publishers []port.EventPublisher, sender *mockMessageSender) NotificationService {
	requests := &mockRequestRepo{getByIDFunc: func(ctx context.Context, id string) (*entity.Request, error) {
		if id != "r1" {
			return nil, nil
		}
		return &entity.Request{ID: "r1", Title: "New laptop", CreatorID: "dev", Metadata: entity.GenericMetadata{}}, nil
	}}
	steps := &mockStepRepo{getByRequestIDFunc: func(ctx context.Context, requestID string) ([]*entity.ApprovalStep, error) {
		return []*entity.ApprovalStep{
			{ID: "s1", Order: 1, Name: "manager", Approver: entity.ApproverRef{UserID: "lead"}, Status: entity.StepStatusApproved},
			{ID: "s2", Order: 2, Name: "finance", Approver: entity.ApproverRef{UserID: "fin"}, Status: entity.StepStatusPending},
			{ID: "s3", Order: 2, Name: "legal", Approver: entity.ApproverRef{UserID: "legal"}, Status: entity.StepStatusPending},
		}, nil
	}}
	directory := &mockDirectoryRepo{users: map[string]*entity.OrgUser{
		"fin": {ID: "fin", LarkUserID: "ou_fin"},
	}}

	var s port.MessageSender
	if sender != nil {
		s = sender
	}
	return NewNotificationService(requests, steps, directory, publishers, s, &mockLogger{})
}

func TestNotificationService_HandleEvent(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		evt       *event.Event
		wantSent  []string
		wantMatch string
	}{
		{
			name: "activated approvers are asked to act",
			evt: event.New(event.KindStepApproved, "r1", "s1", "lead", entity.RequestStatusInReview, now).
				WithPayload(event.PayloadActivatedSteps, "s2,s3"),
			wantSent:  []string{"ou_fin", "legal"},
			wantMatch: "Approval needed",
		},
		{
			name:      "creator hears about completion",
			evt:       event.New(event.KindRequestCompleted, "r1", "", "lead", entity.RequestStatusRejected, now),
			wantSent:  []string{"dev"},
			wantMatch: "rejected",
		},
		{
			name: "creator withdrawing is not told about it",
			evt:  event.New(event.KindRequestCompleted, "r1", "", "dev", entity.RequestStatusWithdrawn, now),
		},
		{
			name: "escalation goes to the escalation target",
			evt: event.New(event.KindStepEscalationDue, "r1", "s2", "system", entity.RequestStatusInReview, now).
				WithPayload(event.PayloadApproverID, "fin").
				WithPayload(event.PayloadEscalateTo, "cfo").
				WithPayload(event.PayloadOverdueHours, "48"),
			wantSent:  []string{"cfo"},
			wantMatch: "48 hours",
		},
		{
			name:     "escalation without target goes to the approver",
			evt:      event.New(event.KindStepEscalationDue, "r1", "s2", "system", entity.RequestStatusInReview, now).WithPayload(event.PayloadApproverID, "fin"),
			wantSent: []string{"ou_fin"},
		},
		{
			name: "unknown request sends nothing",
			evt:  event.New(event.KindRequestCompleted, "gone", "", "lead", entity.RequestStatusApproved, now),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &mockPublisher{name: "redis"}
			sender := &mockMessageSender{}
			svc := newNotificationFixture([]port.EventPublisher{publisher}, sender)

			if err := svc.HandleEvent(context.Background(), tt.evt); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(publisher.published) != 1 || publisher.published[0].ID != tt.evt.ID {
				t.Errorf("expected the event to be published once, got %d", len(publisher.published))
			}

			var receivers []string
			for _, m := range sender.sent {
				receivers = append(receivers, m.receiver)
				if tt.wantMatch != "" && !strings.Contains(m.content, tt.wantMatch) {
					t.Errorf("expected message to contain %q, got %q", tt.wantMatch, m.content)
				}
			}
			if strings.Join(receivers, ",") != strings.Join(tt.wantSent, ",") {
				t.Errorf("expected messages to %v, got %v", tt.wantSent, receivers)
			}
		})
	}
}

func TestNotificationService_AttemptsEverySink(t *testing.T) {
	brokerDown := errors.New("broker down")
	failing := &mockPublisher{name: "redis", publishFunc: func(ctx context.Context, e *event.Event) error {
		return brokerDown
	}}
	healthy := &mockPublisher{name: "audit"}
	sender := &mockMessageSender{}
	svc := newNotificationFixture([]port.EventPublisher{failing, healthy}, sender)

	evt := event.New(event.KindRequestCompleted, "r1", "", "lead", entity.RequestStatusApproved, time.Now())
	err := svc.HandleEvent(context.Background(), evt)

	if !errors.Is(err, brokerDown) {
		t.Errorf("expected joined error to wrap %v, got %v", brokerDown, err)
	}
	if len(healthy.published) != 1 {
		t.Error("expected the healthy publisher to receive the event")
	}
	if len(sender.sent) != 1 {
		t.Error("expected the chat message to be sent anyway")
	}
}

func TestNotificationService_WithoutChat(t *testing.T) {
	publisher := &mockPublisher{name: "redis"}
	svc := newNotificationFixture([]port.EventPublisher{publisher}, nil)

	evt := event.New(event.KindRequestCompleted, "r1", "", "lead", entity.RequestStatusApproved, time.Now())
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Error("expected the event to be published")
	}
}

func TestNotificationService_Register(t *testing.T) {
	publisher := &mockPublisher{name: "redis"}
	svc := newNotificationFixture([]port.EventPublisher{publisher}, nil)
	d := dispatcher.NewDispatcher()
	svc.Register(d)

	evt := event.New(event.KindStepSkipped, "r1", "s2", "admin", entity.RequestStatusInReview, time.Now())
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Errorf("expected the registered service to receive the event, got %d", len(publisher.published))
	}
}
