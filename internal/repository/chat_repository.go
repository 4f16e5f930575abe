package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"devconnect/chat-service/internal/models"
)

var (
	// ErrConversationNotFound is returned when no conversation matches the
	// lookup key.
	ErrConversationNotFound = errors.New("conversation not found")
)

type ChatRepository interface {
	FindByParticipants(ctx context.Context, userID1, userID2 string) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	GetUserConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, error)
	SaveMessage(ctx context.Context, msg *models.Message) (*models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	GetMessagesPage(ctx context.Context, conversationID string, limit int, beforeMessageID string) ([]*models.Message, error)
	MarkMessagesAsSeen(ctx context.Context, conversationID, userID string) (int, error)
	InitializeTables() error
}

type chatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) ChatRepository {
	return &chatRepository{
		db: db,
	}
}

func (r *chatRepository) InitializeTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id1 UUID NOT NULL,
		user_id2 UUID NOT NULL,
		last_message_text TEXT,
		last_message_sender_id UUID,
		last_message_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		CHECK (user_id1 < user_id2),
		UNIQUE(user_id1, user_id2)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		seq BIGSERIAL,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		from_id UUID NOT NULL,
		to_id UUID NOT NULL,
		text TEXT NOT NULL,
		seen BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);
	CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations(user_id1);
	CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations(user_id2);
	CREATE INDEX IF NOT EXISTS idx_conversations_last_message_at ON conversations(last_message_at);
	`

	_, err := r.db.Exec(query)
	return err
}

// orderedPair returns the two ids in the canonical storage order enforced by
// the conversations CHECK constraint. Ids are lowercased first: the columns
// are uuid-typed and Postgres compares uuids case-insensitively, so a
// mixed-case id must not order differently here than it does in the database.
func orderedPair(userID1, userID2 string) (string, string) {
	userID1 = strings.ToLower(userID1)
	userID2 = strings.ToLower(userID2)
	if userID1 > userID2 {
		return userID2, userID1
	}
	return userID1, userID2
}

func (r *chatRepository) FindByParticipants(ctx context.Context, userID1, userID2 string) (*models.Conversation, error) {
	low, high := orderedPair(userID1, userID2)

	query := `
	SELECT id, user_id1, user_id2, last_message_text, last_message_sender_id, last_message_at, created_at, updated_at
	FROM conversations
	WHERE user_id1 = $1 AND user_id2 = $2
	`

	return r.scanConversation(r.db.QueryRowContext(ctx, query, low, high))
}

func (r *chatRepository) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
	SELECT id, user_id1, user_id2, last_message_text, last_message_sender_id, last_message_at, created_at, updated_at
	FROM conversations
	WHERE id = $1
	`

	return r.scanConversation(r.db.QueryRowContext(ctx, query, id))
}

func (r *chatRepository) scanConversation(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	var lastText, lastSender sql.NullString
	var lastAt sql.NullTime

	err := row.Scan(
		&conv.ID, &conv.UserID1, &conv.UserID2,
		&lastText, &lastSender, &lastAt,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	if lastText.Valid {
		conv.LastMessage = &models.LastMessage{
			Text:      lastText.String,
			SenderID:  lastSender.String,
			Timestamp: lastAt.Time,
		}
	}
	return &conv, nil
}

func (r *chatRepository) GetUserConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, error) {
	query := `
	SELECT id, user_id1, user_id2, last_message_text, last_message_sender_id, last_message_at, created_at, updated_at
	FROM conversations
	WHERE user_id1 = $1 OR user_id2 = $1
	ORDER BY last_message_at DESC NULLS LAST
	LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var lastText, lastSender sql.NullString
		var lastAt sql.NullTime
		err := rows.Scan(
			&conv.ID, &conv.UserID1, &conv.UserID2,
			&lastText, &lastSender, &lastAt,
			&conv.CreatedAt, &conv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if lastText.Valid {
			conv.LastMessage = &models.LastMessage{
				Text:      lastText.String,
				SenderID:  lastSender.String,
				Timestamp: lastAt.Time,
			}
		}
		conversations = append(conversations, &conv)
	}

	return conversations, rows.Err()
}

// SaveMessage commits the conversation summary upsert and the message insert
// as one transaction. The single ON CONFLICT upsert keyed on the ordered pair
// is what serializes concurrent first-sends: two racing writers cannot create
// duplicate conversations, and last_message always reflects the insert that
// committed last.
func (r *chatRepository) SaveMessage(ctx context.Context, msg *models.Message) (*models.Conversation, error) {
	low, high := orderedPair(msg.FromID, msg.ToID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	upsert := `
	INSERT INTO conversations (user_id1, user_id2, last_message_text, last_message_sender_id, last_message_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (user_id1, user_id2) DO UPDATE SET
		last_message_text = EXCLUDED.last_message_text,
		last_message_sender_id = EXCLUDED.last_message_sender_id,
		last_message_at = NOW(),
		updated_at = NOW()
	RETURNING id, user_id1, user_id2, last_message_text, last_message_sender_id, last_message_at, created_at, updated_at
	`

	var conv models.Conversation
	var lastText, lastSender sql.NullString
	var lastAt sql.NullTime
	err = tx.QueryRowContext(ctx, upsert, low, high, msg.Text, msg.FromID).Scan(
		&conv.ID, &conv.UserID1, &conv.UserID2,
		&lastText, &lastSender, &lastAt,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastText.Valid {
		conv.LastMessage = &models.LastMessage{
			Text:      lastText.String,
			SenderID:  lastSender.String,
			Timestamp: lastAt.Time,
		}
	}

	insert := `
	INSERT INTO messages (id, conversation_id, from_id, to_id, text, seen)
	VALUES ($1, $2, $3, $4, $5, FALSE)
	RETURNING id, created_at
	`

	msg.ConversationID = conv.ID
	msg.Seen = false
	err = tx.QueryRowContext(ctx, insert, msg.ID, conv.ID, msg.FromID, msg.ToID, msg.Text).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Messages are ordered by seq, the insert sequence: created_at is the
// transaction timestamp and can tie for concurrent sends, seq cannot.
func (r *chatRepository) GetMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `
	SELECT id, conversation_id, from_id, to_id, text, seen, created_at
	FROM messages
	WHERE conversation_id = $1
	ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetMessagesPage returns the most recent messages, oldest first, optionally
// only those before a cursor message.
func (r *chatRepository) GetMessagesPage(ctx context.Context, conversationID string, limit int, beforeMessageID string) ([]*models.Message, error) {
	var query string
	var args []interface{}

	if beforeMessageID != "" {
		query = `
		SELECT id, conversation_id, from_id, to_id, text, seen, created_at
		FROM messages
		WHERE conversation_id = $1 AND seq < (SELECT seq FROM messages WHERE id = $2)
		ORDER BY seq DESC
		LIMIT $3
		`
		args = []interface{}{conversationID, beforeMessageID, limit}
	} else {
		query = `
		SELECT id, conversation_id, from_id, to_id, text, seen, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq DESC
		LIMIT $2
		`
		args = []interface{}{conversationID, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.FromID, &msg.ToID, &msg.Text, &msg.Seen, &msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

func (r *chatRepository) MarkMessagesAsSeen(ctx context.Context, conversationID, userID string) (int, error) {
	query := `
	UPDATE messages
	SET seen = TRUE
	WHERE conversation_id = $1 AND from_id != $2 AND seen = FALSE
	RETURNING id
	`

	rows, err := r.db.QueryContext(ctx, query, conversationID, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}

	return count, rows.Err()
}
