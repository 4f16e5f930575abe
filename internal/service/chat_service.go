package service

import (
	"context"
	"errors"
	"strings"

	"devconnect/chat-service/internal/models"
	"devconnect/chat-service/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrSelfChat             = errors.New("cannot chat with yourself")
	ErrEmptyText            = errors.New("message text is empty")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant in this conversation")
)

type ChatService interface {
	SendMessage(ctx context.Context, fromID, toID, text string) (*models.Message, error)
	FindConversation(ctx context.Context, userID1, userID2 string) (*models.Conversation, error)
	GetConversationMessages(ctx context.Context, conversationID, requesterID string) ([]*models.Message, error)
	GetConversationMessagesPage(ctx context.Context, conversationID, requesterID string, limit int, beforeMessageID string) ([]*models.Message, error)
	GetUserConversations(ctx context.Context, userID string, page, limit int) ([]*models.Conversation, error)
	MarkMessagesAsSeen(ctx context.Context, conversationID, userID string) (int, error)
	VerifyRecipient(ctx context.Context, userID string) error
}

type chatService struct {
	conversations repository.ChatRepository
	users         repository.UserRepository
	logger        *logrus.Logger
}

func NewChatService(conversations repository.ChatRepository, users repository.UserRepository, logger *logrus.Logger) ChatService {
	return &chatService{
		conversations: conversations,
		users:         users,
		logger:        logger,
	}
}

// SendMessage validates the send, then commits the message row and the
// conversation's lastMessage summary as one unit. fromID is the authenticated
// sender, never a client-declared value.
func (s *chatService) SendMessage(ctx context.Context, fromID, toID, text string) (*models.Message, error) {
	toID = strings.TrimSpace(toID)
	if toID == "" || toID == fromID {
		if toID == "" {
			return nil, ErrRecipientNotFound
		}
		return nil, ErrSelfChat
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	if err := s.VerifyRecipient(ctx, toID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:     uuid.New().String(),
		FromID: fromID,
		ToID:   toID,
		Text:   text,
	}

	conv, err := s.conversations.SaveMessage(ctx, msg)
	if err != nil {
		s.logger.WithError(err).Error("Failed to save message")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"message_id":      msg.ID,
		"conversation_id": conv.ID,
		"from_id":         fromID,
		"to_id":           toID,
	}).Info("Message sent")

	return msg, nil
}

func (s *chatService) FindConversation(ctx context.Context, userID1, userID2 string) (*models.Conversation, error) {
	conv, err := s.conversations.FindByParticipants(ctx, userID1, userID2)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		s.logger.WithError(err).Error("Failed to find conversation")
		return nil, err
	}

	return conv, nil
}

func (s *chatService) GetConversationMessages(ctx context.Context, conversationID, requesterID string) ([]*models.Message, error) {
	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		s.logger.WithError(err).Error("Failed to get conversation")
		return nil, err
	}

	if !conv.HasParticipant(requesterID) {
		return nil, ErrNotParticipant
	}

	messages, err := s.conversations.GetMessages(ctx, conversationID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get conversation messages")
		return nil, err
	}

	return messages, nil
}

// GetConversationMessagesPage is the paginated variant used by the REST
// surface; the room-join hydration replays the full history instead.
func (s *chatService) GetConversationMessagesPage(ctx context.Context, conversationID, requesterID string, limit int, beforeMessageID string) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		s.logger.WithError(err).Error("Failed to get conversation")
		return nil, err
	}

	if !conv.HasParticipant(requesterID) {
		return nil, ErrNotParticipant
	}

	messages, err := s.conversations.GetMessagesPage(ctx, conversationID, limit, beforeMessageID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get conversation messages")
		return nil, err
	}

	return messages, nil
}

func (s *chatService) GetUserConversations(ctx context.Context, userID string, page, limit int) ([]*models.Conversation, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	offset := (page - 1) * limit

	conversations, err := s.conversations.GetUserConversations(ctx, userID, limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get user conversations")
		return nil, err
	}

	return conversations, nil
}

func (s *chatService) MarkMessagesAsSeen(ctx context.Context, conversationID, userID string) (int, error) {
	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return 0, ErrConversationNotFound
		}
		return 0, err
	}

	if !conv.HasParticipant(userID) {
		return 0, ErrNotParticipant
	}

	count, err := s.conversations.MarkMessagesAsSeen(ctx, conversationID, userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to mark messages as seen")
		return 0, err
	}

	return count, nil
}

func (s *chatService) VerifyRecipient(ctx context.Context, userID string) error {
	_, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrRecipientNotFound
		}
		s.logger.WithError(err).Error("Failed to look up recipient")
		return err
	}
	return nil
}
