package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/application/port"
)

const (
	defaultReceiveIDType = "open_id"
	msgTypeText          = "text"
)

// Notifier implements port.MessageSender over Lark IM text messages
type Notifier struct {
	messages      messageCreator
	receiveIDType string
	logger        *zap.Logger
}

// NewNotifier creates a notifier sending through the given SDK client
func NewNotifier(client *SDKClient, cfg Config, logger *zap.Logger) *Notifier {
	return newNotifier(client.messages(), cfg.ReceiveIDType, logger)
}

func newNotifier(messages messageCreator, receiveIDType string, logger *zap.Logger) *Notifier {
	if receiveIDType == "" {
		receiveIDType = defaultReceiveIDType
	}
	return &Notifier{
		messages:      messages,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
}

// SendText sends a plain text message to a user
func (n *Notifier) SendText(ctx context.Context, receiverID string, content string) error {
	if receiverID == "" {
		return fmt.Errorf("receiver id cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	body, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	msg := larkIm.NewCreateMessageReqBodyBuilder().
		ReceiveId(receiverID).
		MsgType(msgTypeText).
		Content(string(body)).
		Build()

	resp, err := n.messages.Create(ctx, n.receiveIDType, msg)
	if err != nil {
		n.logger.Error("Failed to send message",
			zap.String("receive_id", receiverID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("receive_id", receiverID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	n.logger.Info("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", receiverID))

	return nil
}

// Verify interface compliance
var _ port.MessageSender = (*Notifier)(nil)
