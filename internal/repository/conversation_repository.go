package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/database"
	"github.com/padhub/backend/internal/models"
)

type ConversationRepository struct {
	db *database.DB
}

func NewConversationRepository(db *database.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `
	c.id, c.property_id, COALESCE(p.title, ''), c.tenant_id, c.agent_id,
	COALESCE(t.full_name, ''), COALESCE(a.full_name, ''), c.created_at, c.updated_at
`

const conversationJoins = `
	FROM chats c
	JOIN properties p ON p.id = c.property_id
	LEFT JOIN profiles t ON t.id = c.tenant_id
	LEFT JOIN profiles a ON a.id = c.agent_id
`

// ListForUser returns every chat userID takes part in, newest activity
// first, with the last message and the user's unread count.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `,
			lm.content, lm.created_at, lm.sender_id,
			(
				SELECT COUNT(*) FROM messages m
				WHERE m.chat_id = c.id AND m.sender_id <> $1
				AND NOT EXISTS (
					SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $1
				)
			) AS unread_count
		` + conversationJoins + `
		LEFT JOIN LATERAL (
			SELECT content, created_at, sender_id
			FROM messages
			WHERE chat_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE c.tenant_id = $1 OR c.agent_id = $1
		ORDER BY c.updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storageError("list conversations", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		var lastContent sql.NullString
		var lastAt sql.NullTime
		var lastSender uuid.NullUUID
		err := rows.Scan(
			&conv.ID,
			&conv.PropertyID,
			&conv.PropertyTitle,
			&conv.TenantID,
			&conv.AgentID,
			&conv.TenantName,
			&conv.AgentName,
			&conv.CreatedAt,
			&conv.UpdatedAt,
			&lastContent,
			&lastAt,
			&lastSender,
			&conv.UnreadCount,
		)
		if err != nil {
			return nil, storageError("scan conversation", err)
		}
		if lastContent.Valid {
			conv.LastMessage = &models.LastMessage{
				Content:   lastContent.String,
				CreatedAt: lastAt.Time,
				SenderID:  lastSender.UUID,
			}
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list conversations", err)
	}

	return conversations, nil
}

// GetOrCreate returns the chat for (propertyID, tenantID), creating it with
// the property's agent when missing. Concurrent callers converge on one row.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, propertyID, tenantID uuid.UUID) (uuid.UUID, error) {
	query := `
		INSERT INTO chats (property_id, tenant_id, agent_id)
		SELECT p.id, $2, p.agent_id FROM properties p WHERE p.id = $1
		ON CONFLICT (property_id, tenant_id) DO UPDATE SET property_id = EXCLUDED.property_id
		RETURNING id
	`

	var id uuid.UUID
	if err := r.db.QueryRowContext(ctx, query, propertyID, tenantID).Scan(&id); err != nil {
		return uuid.Nil, notFoundOr("property", "get or create chat", err)
	}
	return id, nil
}

// PropertyAgent returns the agent who lists propertyID.
func (r *ConversationRepository) PropertyAgent(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	var agentID uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT agent_id FROM properties WHERE id = $1`, propertyID).Scan(&agentID)
	if err != nil {
		return uuid.Nil, notFoundOr("property", "get property agent", err)
	}
	return agentID, nil
}

// IsParticipant checks whether userID is the tenant or agent of chatID.
func (r *ConversationRepository) IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM chats
			WHERE id = $1 AND (tenant_id = $2 OR agent_id = $2)
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, chatID, userID).Scan(&exists); err != nil {
		return false, storageError("check chat participant", err)
	}
	return exists, nil
}
