package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/database"
	"github.com/padhub/backend/internal/models"
)

type MessageRepository struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts message and bumps the chat's updated_at in one transaction.
// ID, CreatedAt and UpdatedAt are filled from the stored row.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.MessageType == "" {
		message.MessageType = models.MessageTypeText
	}

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO messages (id, chat_id, sender_id, content, message_type)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowContext(
			ctx,
			query,
			message.ID,
			message.ChatID,
			message.SenderID,
			message.Content,
			message.MessageType,
		).Scan(&message.CreatedAt, &message.UpdatedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE chats SET updated_at = $2 WHERE id = $1`, message.ChatID, message.CreatedAt)
		return err
	})
	if err != nil {
		return storageError("create message", err)
	}
	return nil
}

// ListByChat returns every message of chatID, oldest first.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, content, message_type, created_at, updated_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, storageError("list messages", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.SenderID,
			&msg.Content,
			&msg.MessageType,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		)
		if err != nil {
			return nil, storageError("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list messages", err)
	}

	return messages, nil
}

// MarkChatRead records a read receipt for every message in chatID not sent
// by userID. It returns the number of newly read messages.
func (r *MessageRepository) MarkChatRead(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	query := `
		INSERT INTO message_reads (message_id, user_id)
		SELECT m.id, $2 FROM messages m
		WHERE m.chat_id = $1 AND m.sender_id <> $2
		ON CONFLICT (message_id, user_id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query, chatID, userID)
	if err != nil {
		return 0, storageError("mark chat read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("mark chat read", err)
	}
	return n, nil
}
