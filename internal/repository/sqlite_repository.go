package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/KuzeyMurathan/shadchat/internal/model"
)

type sqliteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) Repository {
	return &sqliteRepository{db: db}
}

// SaveConversation writes the whole aggregate in one transaction: upsert the
// conversation row, then replace its message list. Replacing rather than
// diffing keeps the write idempotent and makes retry truncation (messages
// disappearing from the middle of the history) a non-event.
func (r *sqliteRepository) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsertQuery := `
		INSERT INTO conversations (id, title, provider_id, model_id, group_id, pinned, disable_system_prompt, total_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			provider_id = excluded.provider_id,
			model_id = excluded.model_id,
			group_id = excluded.group_id,
			pinned = excluded.pinned,
			disable_system_prompt = excluded.disable_system_prompt,
			total_cost = excluded.total_cost,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, upsertQuery,
		conv.ID,
		conv.Title,
		conv.ProviderID,
		conv.ModelID,
		conv.GroupID,
		conv.Pinned,
		conv.DisableSystemPrompt,
		conv.TotalCost,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not upsert conversation: %w", err)
	}

	// Attachments go with their messages via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("could not clear messages: %w", err)
	}

	insertMsgQuery := `
		INSERT INTO messages (id, conversation_id, position, role, content, model, timestamp, token_count, ttft_ns, total_ns, tokens_per_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	insertAttQuery := `
		INSERT INTO attachments (id, message_id, kind, name, mime_type, size_bytes, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, msg := range conv.Messages {
		var modelName sql.NullString
		if msg.Model != "" {
			modelName = sql.NullString{String: msg.Model, Valid: true}
		}
		var ttft, total sql.NullInt64
		var tps sql.NullFloat64
		if msg.Timing != nil {
			ttft = sql.NullInt64{Int64: int64(msg.Timing.TTFT), Valid: true}
			total = sql.NullInt64{Int64: int64(msg.Timing.Total), Valid: true}
			tps = sql.NullFloat64{Float64: msg.Timing.TokensPerSec, Valid: true}
		}
		_, err = tx.ExecContext(ctx, insertMsgQuery,
			msg.ID,
			conv.ID,
			i,
			msg.Role,
			msg.Content,
			modelName,
			msg.Timestamp,
			msg.TokenCount,
			ttft,
			total,
			tps,
		)
		if err != nil {
			return fmt.Errorf("could not insert message: %w", err)
		}
		for _, att := range msg.Attachments {
			_, err = tx.ExecContext(ctx, insertAttQuery,
				att.ID,
				msg.ID,
				att.Kind,
				att.Name,
				att.MimeType,
				att.Size,
				att.Data,
			)
			if err != nil {
				return fmt.Errorf("could not insert attachment: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (r *sqliteRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	query := `
		SELECT id, title, provider_id, model_id, group_id, pinned, disable_system_prompt, total_cost, created_at, updated_at
		FROM conversations WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, conversationID)

	var conv model.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.Title,
		&conv.ProviderID,
		&conv.ModelID,
		&conv.GroupID,
		&conv.Pinned,
		&conv.DisableSystemPrompt,
		&conv.TotalCost,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	messages, err := r.loadMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return &conv, nil
}

func (r *sqliteRepository) loadMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	query := `
		SELECT id, role, content, model, timestamp, token_count, ttft_ns, total_ns, tokens_per_sec
		FROM messages
		WHERE conversation_id = ?
		ORDER BY position ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	byID := make(map[string]*model.Message)
	for rows.Next() {
		var msg model.Message
		var modelName sql.NullString
		var ttft, total sql.NullInt64
		var tps sql.NullFloat64

		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &modelName, &msg.Timestamp, &msg.TokenCount, &ttft, &total, &tps); err != nil {
			return nil, err
		}
		if modelName.Valid {
			msg.Model = modelName.String
		}
		if ttft.Valid || total.Valid {
			msg.Timing = &model.Timing{
				TTFT:         time.Duration(ttft.Int64),
				Total:        time.Duration(total.Int64),
				TokensPerSec: tps.Float64,
			}
		}
		messages = append(messages, &msg)
		byID[msg.ID] = &msg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadAttachments(ctx, conversationID, byID); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *sqliteRepository) loadAttachments(ctx context.Context, conversationID string, byID map[string]*model.Message) error {
	query := `
		SELECT a.id, a.message_id, a.kind, a.name, a.mime_type, a.size_bytes, a.data
		FROM attachments a
		JOIN messages m ON m.id = a.message_id
		WHERE m.conversation_id = ?
		ORDER BY a.rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var att model.Attachment
		var messageID string
		if err := rows.Scan(&att.ID, &messageID, &att.Kind, &att.Name, &att.MimeType, &att.Size, &att.Data); err != nil {
			return err
		}
		if msg, ok := byID[messageID]; ok {
			msg.Attachments = append(msg.Attachments, att)
		}
	}
	return rows.Err()
}

func (r *sqliteRepository) ListConversations(ctx context.Context) ([]model.Summary, error) {
	query := `
		SELECT c.id, c.title, c.provider_id, c.model_id, c.created_at, c.updated_at, c.total_cost, c.pinned, c.group_id, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.pinned DESC, c.updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.Summary
	for rows.Next() {
		var s model.Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.ProviderID, &s.ModelID, &s.CreatedAt, &s.UpdatedAt, &s.TotalCost, &s.Pinned, &s.GroupID, &s.MessageCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *sqliteRepository) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	query := "UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, newTitle, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r *sqliteRepository) SetConversationPinned(ctx context.Context, conversationID string, pinned bool) error {
	query := "UPDATE conversations SET pinned = ?, updated_at = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, pinned, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r *sqliteRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r *sqliteRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (r *sqliteRepository) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
