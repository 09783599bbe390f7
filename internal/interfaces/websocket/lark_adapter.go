// Package websocket provides WebSocket adapters for external event sources.
// The Lark adapter lets approvers decide steps by sending chat commands to the bot.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

const messageReceiveEvent = "im.message.receive_v1"

const usage = "Usage:\n/approve <request_id> <step_id> [comment]\n/reject <request_id> <step_id> <reason>"

// Decider records a decision on a persisted request
type Decider interface {
	Decide(ctx context.Context, requestID string, cmd progression.DecisionCommand) (*entity.Request, error)
}

// LarkAdapter wraps the Lark WebSocket SDK client and turns chat commands
// sent to the bot into approval decisions.
type LarkAdapter struct {
	appID         string
	appSecret     string
	receiveIDType string
	decider       Decider
	replies       port.MessageSender
	logger        *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
}

// LarkAdapterConfig holds configuration for the Lark WebSocket adapter.
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
	// ReceiveIDType picks which sender id is the actor, open_id by default.
	// It must match the ids stored in the user directory.
	ReceiveIDType string
}

// NewLarkAdapter creates a new Lark WebSocket adapter. replies may be nil.
func NewLarkAdapter(cfg LarkAdapterConfig, decider Decider, replies port.MessageSender, logger *zap.Logger) *LarkAdapter {
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = "open_id"
	}
	return &LarkAdapter{
		appID:         cfg.AppID,
		appSecret:     cfg.AppSecret,
		receiveIDType: idType,
		decider:       decider,
		replies:       replies,
		logger:        logger,
	}
}

// Start initializes the WebSocket connection and begins listening for chat messages.
// This method blocks until the context is cancelled or an error occurs.
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter already started")
	}

	// Verification token and encrypt key are not needed in WebSocket mode
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "")
	sdkDispatcher.OnCustomizedEvent(messageReceiveEvent, a.handleLarkEvent)

	a.wsClient = larkws.NewClient(
		a.appID,
		a.appSecret,
		larkws.WithEventHandler(sdkDispatcher),
	)

	a.started = true
	a.mu.Unlock()

	a.logger.Info("Starting Lark WebSocket adapter", zap.String("app_id", a.appID))

	if err := a.wsClient.Start(ctx); err != nil {
		a.logger.Error("Lark WebSocket client error", zap.Error(err))
		return fmt.Errorf("websocket client error: %w", err)
	}

	return nil
}

// Stop marks the adapter stopped.
// The SDK client itself is stopped by cancelling the context passed to Start.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	a.started = false
	a.logger.Info("Lark WebSocket adapter stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running.
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// larkMessageEvent is the part of an im.message.receive_v1 payload the adapter reads.
type larkMessageEvent struct {
	Header struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
	} `json:"header"`
	Event struct {
		Sender struct {
			SenderID   map[string]string `json:"sender_id"`
			SenderType string            `json:"sender_type"`
		} `json:"sender"`
		Message struct {
			MessageID   string `json:"message_id"`
			MessageType string `json:"message_type"`
			Content     string `json:"content"`
		} `json:"message"`
	} `json:"event"`
}

// chatCommand is a parsed /approve or /reject message
type chatCommand struct {
	RequestID string
	StepID    string
	Decision  entity.Decision
	Comment   string
}

var errNotACommand = errors.New("not a command")

// parseCommand reads "/approve <request_id> <step_id> [comment]" or "/reject ..."
func parseCommand(text string) (*chatCommand, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, errNotACommand
	}

	var decision entity.Decision
	switch strings.ToLower(fields[0]) {
	case "/approve":
		decision = entity.DecisionApprove
	case "/reject":
		decision = entity.DecisionReject
	default:
		return nil, fmt.Errorf("unknown command %s", fields[0])
	}

	if len(fields) < 3 {
		return nil, fmt.Errorf("%s needs a request id and a step id", fields[0])
	}

	return &chatCommand{
		RequestID: fields[1],
		StepID:    fields[2],
		Decision:  decision,
		Comment:   strings.Join(fields[3:], " "),
	}, nil
}

// handleLarkEvent is called by the Lark SDK for every message sent to the bot.
func (a *LarkAdapter) handleLarkEvent(ctx context.Context, evt *larkevent.EventReq) error {
	var msg larkMessageEvent
	if err := json.Unmarshal(evt.Body, &msg); err != nil {
		a.logger.Error("Failed to parse Lark event payload", zap.Error(err))
		return fmt.Errorf("failed to parse event payload: %w", err)
	}

	if msg.Event.Sender.SenderType != "user" || msg.Event.Message.MessageType != "text" {
		return nil
	}
	actorID := msg.Event.Sender.SenderID[a.receiveIDType]
	if actorID == "" {
		a.logger.Warn("Message sender has no usable id",
			zap.String("id_type", a.receiveIDType),
			zap.String("message_id", msg.Event.Message.MessageID))
		return nil
	}

	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(msg.Event.Message.Content), &content); err != nil {
		return nil
	}

	cmd, err := parseCommand(content.Text)
	if errors.Is(err, errNotACommand) {
		return nil
	}
	if err != nil {
		a.reply(ctx, actorID, err.Error()+"\n"+usage)
		return nil
	}

	req, err := a.decider.Decide(ctx, cmd.RequestID, progression.DecisionCommand{
		ActorID:  actorID,
		StepID:   cmd.StepID,
		Decision: cmd.Decision,
		Comment:  cmd.Comment,
	})
	if err != nil {
		a.logger.Info("Chat decision refused",
			zap.String("actor_id", actorID),
			zap.String("request_id", cmd.RequestID),
			zap.String("step_id", cmd.StepID),
			zap.Error(err))
		a.reply(ctx, actorID, refusal(err))
		return nil
	}

	a.logger.Info("Chat decision recorded",
		zap.String("actor_id", actorID),
		zap.String("request_id", req.ID),
		zap.String("step_id", cmd.StepID),
		zap.String("decision", string(cmd.Decision)),
		zap.String("event_id", msg.Header.EventID))
	a.reply(ctx, actorID, fmt.Sprintf("Recorded %s on step %s. %q is now %s.", cmd.Decision, cmd.StepID, req.Title, req.Status))
	return nil
}

// refusal explains a rejected command without leaking internal errors
func refusal(err error) string {
	for _, known := range []error{
		progression.ErrInvalidDecision,
		progression.ErrInvalidState,
		progression.ErrNotCurrentStep,
		progression.ErrForbidden,
		progression.ErrCommentRequired,
		port.ErrNotFound,
		port.ErrConcurrentUpdate,
	} {
		if errors.Is(err, known) {
			return "Decision not recorded: " + err.Error()
		}
	}
	return "Decision not recorded, please try again later."
}

func (a *LarkAdapter) reply(ctx context.Context, receiverID, text string) {
	if a.replies == nil {
		return
	}
	if err := a.replies.SendText(ctx, receiverID, text); err != nil {
		a.logger.Error("Failed to reply in chat", zap.String("receiver_id", receiverID), zap.Error(err))
	}
}
