package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-flow/internal/domain/entity"
)

// Payload keys
const (
	// PayloadActivatedSteps lists the comma separated ids of steps the operation made pending
	PayloadActivatedSteps = "activatedSteps"
	PayloadApproverID     = "approverId"
	PayloadEscalateTo     = "escalateTo"
	PayloadOverdueHours   = "overdueHours"
)

// Event is an outbound notification describing one change to a request
type Event struct {
	ID              string               `json:"id"`
	Kind            Kind                 `json:"kind"`
	RequestID       string               `json:"requestId"`
	StepID          string               `json:"stepId,omitempty"`
	ActorID         string               `json:"actorId"`
	OccurredAt      time.Time            `json:"occurredAt"`
	ResultingStatus entity.RequestStatus `json:"resultingStatus"`
	CorrelationID   string               `json:"correlationId"`
	Payload         map[string]string    `json:"payload,omitempty"`
}

// New creates an event with a fresh ID that starts its own correlation chain
func New(kind Kind, requestID, stepID, actorID string, resulting entity.RequestStatus, occurredAt time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:              id,
		Kind:            kind,
		RequestID:       requestID,
		StepID:          stepID,
		ActorID:         actorID,
		OccurredAt:      occurredAt,
		ResultingStatus: resulting,
		CorrelationID:   id,
	}
}

// Correlate links events produced by the same operation to the first one
func Correlate(events []*Event) []*Event {
	if len(events) == 0 {
		return events
	}
	root := events[0].CorrelationID
	for _, e := range events[1:] {
		e.CorrelationID = root
	}
	return events
}

// WithPayload returns a copy of the event with an added payload key-value pair
func (e *Event) WithPayload(key, value string) *Event {
	newPayload := make(map[string]string, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	c := *e
	c.Payload = newPayload
	return &c
}

// PayloadValue retrieves a payload value, or "" when absent
func (e *Event) PayloadValue(key string) string {
	return e.Payload[key]
}

// IsCompletion returns true if the event marks a request reaching a terminal status
func (e *Event) IsCompletion() bool {
	return e.Kind == KindRequestCompleted
}
