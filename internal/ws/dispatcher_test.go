package ws

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"devconnect/chat-service/internal/models"
	"devconnect/chat-service/internal/service"
)

type fakeChatService struct {
	users         map[string]bool
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	saves         int
	saveErr       error
}

func newFakeChatService(users ...string) *fakeChatService {
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u] = true
	}
	return &fakeChatService{
		users:         known,
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
	}
}

func (f *fakeChatService) addConversation(userID1, userID2 string, texts ...string) *models.Conversation {
	conv := &models.Conversation{ID: "conv-" + RoomID(userID1, userID2), UserID1: userID1, UserID2: userID2}
	f.conversations[RoomID(userID1, userID2)] = conv
	for _, text := range texts {
		f.messages[conv.ID] = append(f.messages[conv.ID], &models.Message{
			ID:             "msg-" + text,
			ConversationID: conv.ID,
			FromID:         userID1,
			ToID:           userID2,
			Text:           text,
		})
	}
	return conv
}

func (f *fakeChatService) SendMessage(_ context.Context, fromID, toID, text string) (*models.Message, error) {
	if strings.TrimSpace(toID) == "" || !f.users[toID] {
		return nil, service.ErrRecipientNotFound
	}
	if toID == fromID {
		return nil, service.ErrSelfChat
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, service.ErrEmptyText
	}
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saves++
	conv := f.conversations[RoomID(fromID, toID)]
	if conv == nil {
		conv = f.addConversation(fromID, toID)
	}
	msg := &models.Message{
		ID:             "msg-sent",
		ConversationID: conv.ID,
		FromID:         fromID,
		ToID:           toID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	f.messages[conv.ID] = append(f.messages[conv.ID], msg)
	return msg, nil
}

func (f *fakeChatService) FindConversation(_ context.Context, userID1, userID2 string) (*models.Conversation, error) {
	conv, ok := f.conversations[RoomID(userID1, userID2)]
	if !ok {
		return nil, service.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeChatService) GetConversationMessages(_ context.Context, conversationID, requesterID string) ([]*models.Message, error) {
	return f.messages[conversationID], nil
}

func (f *fakeChatService) GetConversationMessagesPage(_ context.Context, conversationID, requesterID string, limit int, beforeMessageID string) ([]*models.Message, error) {
	return f.messages[conversationID], nil
}

func (f *fakeChatService) GetUserConversations(_ context.Context, userID string, page, limit int) ([]*models.Conversation, error) {
	return nil, nil
}

func (f *fakeChatService) MarkMessagesAsSeen(_ context.Context, conversationID, userID string) (int, error) {
	return 0, nil
}

func (f *fakeChatService) VerifyRecipient(_ context.Context, userID string) error {
	if !f.users[userID] {
		return service.ErrRecipientNotFound
	}
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func readEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event %s", payload)
	default:
	}
}

func expectError(t *testing.T, c *Client, wantSubstring string) {
	t.Helper()
	event := readEvent(t, c)
	if event.Event != EventError {
		t.Fatalf("event = %q, want %q", event.Event, EventError)
	}
	var payload errorPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if !strings.Contains(payload.Message, wantSubstring) {
		t.Fatalf("error message = %q, want it to contain %q", payload.Message, wantSubstring)
	}
}

func handle(d *Dispatcher, c *Client, event string, data any) {
	raw, _ := json.Marshal(data)
	payload, _ := json.Marshal(Event{Event: event, Data: raw})
	d.Handle(context.Background(), c, payload)
}

func TestJoinChatRequiresTarget(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")

	handle(d, c, EventJoinChat, joinChatPayload{})

	expectError(t, c, "toUserId is required")
}

func TestJoinChatRejectsSelf(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")

	handle(d, c, EventJoinChat, joinChatPayload{ToUserID: "user-a"})

	expectError(t, c, "yourself")
}

func TestJoinChatRejectsUnknownRecipient(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")

	handle(d, c, EventJoinChat, joinChatPayload{ToUserID: "ghost"})

	expectError(t, c, "recipient not found")
}

func TestJoinChatWithoutConversationJoinsSilently(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")

	handle(d, c, EventJoinChat, joinChatPayload{ToUserID: "user-b"})

	expectNoEvent(t, c)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if _, ok := hub.rooms[RoomID("user-a", "user-b")][c]; !ok {
		t.Fatal("client was not subscribed to the pair room")
	}
}

func TestJoinChatReplaysHistoryToRoom(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	chats.addConversation("user-a", "user-b", "one", "two", "three")
	d := NewDispatcher(hub, chats, testLogger())

	other := NewClient(hub, nil, "user-b")
	hub.Join(RoomID("user-a", "user-b"), other)

	c := NewClient(hub, nil, "user-a")
	handle(d, c, EventJoinChat, joinChatPayload{ToUserID: "user-b"})

	for _, subscriber := range []*Client{c, other} {
		event := readEvent(t, subscriber)
		if event.Event != EventMessageHistory {
			t.Fatalf("event = %q, want %q", event.Event, EventMessageHistory)
		}
		var history []*models.Message
		if err := json.Unmarshal(event.Data, &history); err != nil {
			t.Fatalf("decode history: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("history has %d messages, want 3", len(history))
		}
		for i, want := range []string{"one", "two", "three"} {
			if history[i].Text != want {
				t.Fatalf("history[%d].Text = %q, want %q", i, history[i].Text, want)
			}
		}
	}
}

func TestJoinChatTwiceKeepsSingleMembership(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")

	handle(d, c, EventJoinChat, joinChatPayload{ToUserID: "user-b"})
	handle(d, c, EventJoinChat, joinChatPayload{ToUserID: "user-b"})

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if got := len(hub.rooms[RoomID("user-a", "user-b")]); got != 1 {
		t.Fatalf("room has %d subscribers, want 1", got)
	}
}

func TestSendMessageRejectsWhitespaceText(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")
	other := NewClient(hub, nil, "user-b")
	hub.Join(RoomID("user-a", "user-b"), c)
	hub.Join(RoomID("user-a", "user-b"), other)

	handle(d, c, EventSendMessage, sendMessagePayload{ToUserID: "user-b", Text: "   "})

	expectError(t, c, "text is required")
	expectNoEvent(t, other)
	if chats.saves != 0 {
		t.Fatalf("saves = %d, want 0", chats.saves)
	}
}

func TestSendMessageBroadcastsPersistedMessage(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")
	other := NewClient(hub, nil, "user-b")
	hub.Join(RoomID("user-a", "user-b"), c)
	hub.Join(RoomID("user-a", "user-b"), other)

	handle(d, c, EventSendMessage, sendMessagePayload{ToUserID: "user-b", Text: "hello"})

	for _, subscriber := range []*Client{c, other} {
		event := readEvent(t, subscriber)
		if event.Event != EventMessageReceived {
			t.Fatalf("event = %q, want %q", event.Event, EventMessageReceived)
		}
		var msg models.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.FromID != "user-a" || msg.ToID != "user-b" || msg.Text != "hello" {
			t.Fatalf("message = %+v, want from user-a to user-b text hello", msg)
		}
		if msg.ID == "" || msg.ConversationID == "" {
			t.Fatalf("message %+v is missing persisted identifiers", msg)
		}
	}
	if chats.saves != 1 {
		t.Fatalf("saves = %d, want 1", chats.saves)
	}
}

func TestSendMessageStoreFailureGoesToSenderOnly(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	chats.saveErr = context.DeadlineExceeded
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")
	other := NewClient(hub, nil, "user-b")
	hub.Join(RoomID("user-a", "user-b"), c)
	hub.Join(RoomID("user-a", "user-b"), other)

	handle(d, c, EventSendMessage, sendMessagePayload{ToUserID: "user-b", Text: "hello"})

	expectError(t, c, "failed to send")
	expectNoEvent(t, other)
}

func TestTypingWithoutConversationDoesNotBroadcast(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")
	other := NewClient(hub, nil, "user-b")
	hub.Join(RoomID("user-a", "user-b"), other)

	handle(d, c, EventTyping, typingPayload{ToUserID: "user-b"})

	expectError(t, c, "no conversation")
	expectNoEvent(t, other)
}

func TestTypingBroadcastsSenderID(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a", "user-b")
	chats.addConversation("user-a", "user-b")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")
	other := NewClient(hub, nil, "user-b")
	hub.Join(RoomID("user-a", "user-b"), c)
	hub.Join(RoomID("user-a", "user-b"), other)

	for _, name := range []string{EventTyping, EventStopTyping} {
		handle(d, c, name, typingPayload{ToUserID: "user-b"})

		event := readEvent(t, other)
		if event.Event != name {
			t.Fatalf("event = %q, want %q", event.Event, name)
		}
		var payload presencePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			t.Fatalf("decode presence payload: %v", err)
		}
		if payload.UserID != "user-a" {
			t.Fatalf("presence userId = %q, want user-a", payload.UserID)
		}
		// Drain the sender's own copy.
		readEvent(t, c)
	}
}

func TestUnknownEventReportsError(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")

	handle(d, c, "deleteEverything", struct{}{})

	expectError(t, c, "unsupported")
}

func TestMalformedFrameReportsError(t *testing.T) {
	hub := NewHub()
	chats := newFakeChatService("user-a")
	d := NewDispatcher(hub, chats, testLogger())
	c := NewClient(hub, nil, "user-a")

	d.Handle(context.Background(), c, []byte("{not json"))

	expectError(t, c, "invalid event payload")
}
