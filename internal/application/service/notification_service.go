package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/approval-flow/internal/application/dispatcher"
	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

// NotificationService fans domain events out to the configured sinks
type NotificationService interface {
	// Register subscribes the service to every event kind
	Register(d dispatcher.Dispatcher)

	// HandleEvent publishes the event and sends chat messages to the people it concerns
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	requestRepo   port.RequestRepository
	stepRepo      port.StepRepository
	directoryRepo port.DirectoryRepository
	publishers    []port.EventPublisher
	messageSender port.MessageSender
	logger        Logger
}

// NewNotificationService creates a new NotificationService.
// messageSender may be nil when chat delivery is disabled.
func NewNotificationService(
	requestRepo port.RequestRepository,
	stepRepo port.StepRepository,
	directoryRepo port.DirectoryRepository,
	publishers []port.EventPublisher,
	messageSender port.MessageSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		requestRepo:   requestRepo,
		stepRepo:      stepRepo,
		directoryRepo: directoryRepo,
		publishers:    publishers,
		messageSender: messageSender,
		logger:        logger,
	}
}

// Register subscribes the service to every event kind
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(dispatcher.AllKinds, "notification", s.HandleEvent)
}

// HandleEvent delivers evt to every publisher, then messages the affected users.
// Every sink is attempted; failures are joined.
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	var errs []error

	for _, p := range s.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			s.logger.Error("Failed to publish event", "error", err, "publisher", p.Name(), "event_id", evt.ID, "kind", evt.Kind)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}

	if s.messageSender != nil {
		if err := s.sendMessages(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *notificationServiceImpl) sendMessages(ctx context.Context, evt *event.Event) error {
	req, err := s.requestRepo.GetByID(ctx, evt.RequestID)
	if err != nil {
		return fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		s.logger.Info("Skipping messages for unknown request", "request_id", evt.RequestID)
		return nil
	}

	var errs []error
	send := func(userID, content string) {
		if userID == "" {
			return
		}
		if err := s.send(ctx, userID, content); err != nil {
			errs = append(errs, err)
		}
	}

	if ids := evt.PayloadValue(event.PayloadActivatedSteps); ids != "" {
		steps, err := s.stepRepo.GetByRequestID(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("get steps: %w", err)
		}
		for _, id := range strings.Split(ids, ",") {
			for _, step := range steps {
				if step.ID == id && step.Status == entity.StepStatusPending {
					send(step.Approver.UserID, buildApprovalNeededMessage(req, step))
				}
			}
		}
	}

	switch evt.Kind {
	case event.KindRequestCompleted:
		if evt.ActorID != req.CreatorID {
			send(req.CreatorID, buildCompletedMessage(req, evt))
		}
	case event.KindStepEscalationDue:
		to := evt.PayloadValue(event.PayloadEscalateTo)
		if to == "" {
			to = evt.PayloadValue(event.PayloadApproverID)
		}
		send(to, buildEscalationMessage(req, evt))
	}

	return errors.Join(errs...)
}

// send delivers content to the user's chat id, falling back to the directory id
func (s *notificationServiceImpl) send(ctx context.Context, userID, content string) error {
	receiver := userID
	user, err := s.directoryRepo.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user != nil && user.LarkUserID != "" {
		receiver = user.LarkUserID
	}

	if err := s.messageSender.SendText(ctx, receiver, content); err != nil {
		s.logger.Error("Failed to send message", "error", err, "user_id", userID)
		return fmt.Errorf("send message to %s: %w", userID, err)
	}

	s.logger.Info("Message sent", "user_id", userID, "message_length", len(content))
	return nil
}

func buildApprovalNeededMessage(req *entity.Request, step *entity.ApprovalStep) string {
	name := step.Name
	if name == "" {
		name = fmt.Sprintf("step %d", step.Order)
	}
	return fmt.Sprintf("Approval needed: %q (%s)\nRequest: %s\nStep: %s", req.Title, req.Metadata.Kind(), req.ID, name)
}

func buildCompletedMessage(req *entity.Request, evt *event.Event) string {
	return fmt.Sprintf("Your request %q was %s.\nRequest: %s", req.Title, evt.ResultingStatus, req.ID)
}

func buildEscalationMessage(req *entity.Request, evt *event.Event) string {
	return fmt.Sprintf("Overdue approval: %q has waited more than %s hours on %s.\nRequest: %s",
		req.Title,
		evt.PayloadValue(event.PayloadOverdueHours),
		evt.PayloadValue(event.PayloadApproverID),
		req.ID,
	)
}
