package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"devconnect/chat-service/internal/service"
)

// Dispatcher routes inbound client events: validate, run the store mutation,
// broadcast the result to the target room. Validation and store failures are
// reported to the originating connection only and never terminate it.
type Dispatcher struct {
	hub    *Hub
	chats  service.ChatService
	logger *logrus.Logger
}

func NewDispatcher(hub *Hub, chats service.ChatService, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		chats:  chats,
		logger: logger,
	}
}

// Handle processes one inbound frame from an authenticated client.
func (d *Dispatcher) Handle(ctx context.Context, c *Client, payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		d.sendError(c, "invalid event payload")
		return
	}

	switch event.Event {
	case EventJoinChat:
		d.handleJoinChat(ctx, c, event.Data)
	case EventSendMessage:
		d.handleSendMessage(ctx, c, event.Data)
	case EventTyping:
		d.handlePresence(ctx, c, event.Data, EventTyping)
	case EventStopTyping:
		d.handlePresence(ctx, c, event.Data, EventStopTyping)
	default:
		d.sendError(c, "unsupported event")
	}
}

// handleJoinChat subscribes the connection to the pair's room and replays the
// stored history when a conversation already exists. A missing conversation
// is not an error: the room simply has no history yet.
func (d *Dispatcher) handleJoinChat(ctx context.Context, c *Client, data json.RawMessage) {
	var payload joinChatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		d.sendError(c, "invalid joinChat payload")
		return
	}

	toUserID, ok := d.validateTarget(ctx, c, payload.ToUserID)
	if !ok {
		return
	}

	roomID := RoomID(c.UserID(), toUserID)
	d.hub.Join(roomID, c)

	d.logger.WithFields(logrus.Fields{
		"user_id": c.UserID(),
		"room_id": roomID,
	}).Debug("User joined room")

	conv, err := d.chats.FindConversation(ctx, c.UserID(), toUserID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			return
		}
		d.sendError(c, "failed to load conversation")
		return
	}

	messages, err := d.chats.GetConversationMessages(ctx, conv.ID, c.UserID())
	if err != nil {
		d.sendError(c, "failed to load message history")
		return
	}

	d.broadcast(roomID, EventMessageHistory, messages)
}

// handleSendMessage persists the message together with the conversation
// summary, then echoes the stored record to every room subscriber, the
// sender's other connections included.
func (d *Dispatcher) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		d.sendError(c, "invalid sendMessage payload")
		return
	}

	msg, err := d.chats.SendMessage(ctx, c.UserID(), strings.TrimSpace(payload.ToUserID), payload.Text)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecipientNotFound):
			d.sendError(c, "recipient not found")
		case errors.Is(err, service.ErrSelfChat):
			d.sendError(c, "cannot send a message to yourself")
		case errors.Is(err, service.ErrEmptyText):
			d.sendError(c, "message text is required")
		default:
			d.logger.WithError(err).WithField("user_id", c.UserID()).Error("Failed to send message")
			d.sendError(c, "failed to send message")
		}
		return
	}

	d.broadcast(RoomID(msg.FromID, msg.ToID), EventMessageReceived, msg)
}

// handlePresence relays a typing signal. Nothing is persisted and delivery is
// best-effort; signaling into a conversation that has never started is
// rejected.
func (d *Dispatcher) handlePresence(ctx context.Context, c *Client, data json.RawMessage, name string) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		d.sendError(c, "invalid "+name+" payload")
		return
	}

	toUserID, ok := d.validateTarget(ctx, c, payload.ToUserID)
	if !ok {
		return
	}

	if _, err := d.chats.FindConversation(ctx, c.UserID(), toUserID); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			d.sendError(c, "no conversation with this user yet")
		} else {
			d.sendError(c, "failed to load conversation")
		}
		return
	}

	d.broadcast(RoomID(c.UserID(), toUserID), name, presencePayload{UserID: c.UserID()})
}

// validateTarget runs the shared toUserId checks and reports failures to the
// originating connection.
func (d *Dispatcher) validateTarget(ctx context.Context, c *Client, toUserID string) (string, bool) {
	toUserID = strings.TrimSpace(toUserID)
	if toUserID == "" {
		d.sendError(c, "toUserId is required")
		return "", false
	}
	if toUserID == c.UserID() {
		d.sendError(c, "cannot chat with yourself")
		return "", false
	}

	if err := d.chats.VerifyRecipient(ctx, toUserID); err != nil {
		if errors.Is(err, service.ErrRecipientNotFound) {
			d.sendError(c, "recipient not found")
		} else {
			d.sendError(c, "failed to verify recipient")
		}
		return "", false
	}
	return toUserID, true
}

func (d *Dispatcher) broadcast(roomID, name string, data any) {
	payload, err := marshalEvent(name, data)
	if err != nil {
		d.logger.WithError(err).WithField("event", name).Error("Failed to marshal event")
		return
	}
	d.hub.Broadcast(roomID, payload)
}

// sendError reports a failure to the originating connection only. Errors are
// never broadcast and never terminate the connection.
func (d *Dispatcher) sendError(c *Client, message string) {
	payload, err := marshalEvent(EventError, errorPayload{Message: message})
	if err != nil {
		d.logger.WithError(err).Error("Failed to marshal error event")
		return
	}
	if !c.enqueue(payload) {
		go c.Close()
	}
}
