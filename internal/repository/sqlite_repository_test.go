package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/repository"
)

func setupSQLiteRepository(t *testing.T) (repository.Repository, *sql.DB, sqlmock.Sqlmock) {
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)

	return repository.NewSQLiteRepository(db), db, mockDB
}

// savedConversation builds the aggregate the save tests persist: a user turn
// with an attachment followed by a finished assistant turn with timing.
func savedConversation() *model.Conversation {
	conv := model.NewConversation("openai", "gpt-4o")
	conv.Title = "Greetings"
	conv.TotalCost = 0.01

	user := model.NewUserMessage("hello", []model.Attachment{{
		ID:       "att-1",
		Kind:     model.AttachmentImage,
		Name:     "pic.png",
		MimeType: "image/png",
		Size:     123,
		Data:     "data:image/png;base64,aGk=",
	}})
	user.TokenCount = 2

	assistant := model.NewAssistantPlaceholder("gpt-4o")
	assistant.AppendToken("Hello!")
	assistant.FinalizeStream()
	assistant.TokenCount = 2
	assistant.Timing = &model.Timing{
		TTFT:         120 * time.Millisecond,
		Total:        800 * time.Millisecond,
		TokensPerSec: 2.5,
	}

	conv.Append(user)
	conv.Append(assistant)
	return conv
}

func TestSQLiteRepository_SaveConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Full aggregate in one transaction", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		conv := savedConversation()
		user, assistant := conv.Messages[0], conv.Messages[1]

		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO conversations").
			WithArgs(conv.ID, "Greetings", "openai", "gpt-4o", "", false, false, 0.01, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("DELETE FROM messages WHERE conversation_id").
			WithArgs(conv.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec("INSERT INTO messages").
			WithArgs(user.ID, conv.ID, 0, "user", "hello", nil, sqlmock.AnyArg(), 2, nil, nil, nil).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("INSERT INTO attachments").
			WithArgs("att-1", user.ID, "image", "pic.png", "image/png", int64(123), "data:image/png;base64,aGk=").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("INSERT INTO messages").
			WithArgs(assistant.ID, conv.ID, 1, "assistant", "Hello!", "gpt-4o", sqlmock.AnyArg(), 2,
				int64(120*time.Millisecond), int64(800*time.Millisecond), 2.5).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mockDB.ExpectCommit()

		err := repo.SaveConversation(ctx, conv)

		require.NoError(t, err)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Failure - Message insert rolls the transaction back", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		conv := savedConversation()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("DELETE FROM messages WHERE conversation_id").WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec("INSERT INTO messages").WillReturnError(errors.New("disk I/O error"))
		mockDB.ExpectRollback()

		err := repo.SaveConversation(ctx, conv)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not insert message")
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestSQLiteRepository_GetConversation(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Success - Rehydrates messages and attachments in order", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		convRows := sqlmock.NewRows([]string{"id", "title", "provider_id", "model_id", "group_id", "pinned", "disable_system_prompt", "total_cost", "created_at", "updated_at"}).
			AddRow("conv-1", "Greetings", "openai", "gpt-4o", "", false, true, 0.01, now, now)
		mockDB.ExpectQuery("SELECT id, title, provider_id, model_id, group_id, pinned, disable_system_prompt, total_cost, created_at, updated_at FROM conversations WHERE id").
			WithArgs("conv-1").
			WillReturnRows(convRows)

		msgRows := sqlmock.NewRows([]string{"id", "role", "content", "model", "timestamp", "token_count", "ttft_ns", "total_ns", "tokens_per_sec"}).
			AddRow("msg-1", "user", "hello", nil, now, 2, nil, nil, nil).
			AddRow("msg-2", "assistant", "Hello!", "gpt-4o", now, 2, int64(120*time.Millisecond), int64(800*time.Millisecond), 2.5)
		mockDB.ExpectQuery("FROM messages WHERE conversation_id").
			WithArgs("conv-1").
			WillReturnRows(msgRows)

		attRows := sqlmock.NewRows([]string{"id", "message_id", "kind", "name", "mime_type", "size_bytes", "data"}).
			AddRow("att-1", "msg-1", "image", "pic.png", "image/png", int64(123), "data:image/png;base64,aGk=")
		mockDB.ExpectQuery("FROM attachments a JOIN messages m").
			WithArgs("conv-1").
			WillReturnRows(attRows)

		conv, err := repo.GetConversation(ctx, "conv-1")

		require.NoError(t, err)
		assert.Equal(t, "Greetings", conv.Title)
		assert.True(t, conv.DisableSystemPrompt)
		require.Len(t, conv.Messages, 2)

		user := conv.Messages[0]
		assert.Equal(t, model.RoleUser, user.Role)
		assert.Nil(t, user.Timing)
		require.Len(t, user.Attachments, 1)
		assert.Equal(t, "pic.png", user.Attachments[0].Name)

		assistant := conv.Messages[1]
		assert.Equal(t, "gpt-4o", assistant.Model)
		require.NotNil(t, assistant.Timing)
		assert.Equal(t, 120*time.Millisecond, assistant.Timing.TTFT)
		assert.Equal(t, 2.5, assistant.Timing.TokensPerSec)

		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Failure - Unknown id maps to ErrNotFound", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		mockDB.ExpectQuery("FROM conversations WHERE id").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetConversation(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestSQLiteRepository_ListConversations(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo, db, mockDB := setupSQLiteRepository(t)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id", "title", "provider_id", "model_id", "created_at", "updated_at", "total_cost", "pinned", "group_id", "count"}).
		AddRow("conv-2", "Pinned one", "anthropic", "claude-3-5-sonnet-20241022", now, now, 0.2, true, "", 4).
		AddRow("conv-1", "Older one", "openai", "gpt-4o", now, now, 0.01, false, "work", 2)
	mockDB.ExpectQuery("FROM conversations c LEFT JOIN messages m").WillReturnRows(rows)

	summaries, err := repo.ListConversations(ctx)

	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "conv-2", summaries[0].ID)
	assert.True(t, summaries[0].Pinned)
	assert.Equal(t, 4, summaries[0].MessageCount)
	assert.Equal(t, "work", summaries[1].GroupID)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSQLiteRepository_RowUpdates(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Title update touches one row", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		mockDB.ExpectExec("UPDATE conversations SET title").
			WithArgs("New title", sqlmock.AnyArg(), "conv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateConversationTitle(ctx, "conv-1", "New title"))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Success - Pin update touches one row", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		mockDB.ExpectExec("UPDATE conversations SET pinned").
			WithArgs(true, sqlmock.AnyArg(), "conv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SetConversationPinned(ctx, "conv-1", true))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Success - Delete removes the row", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		mockDB.ExpectExec("DELETE FROM conversations WHERE id").
			WithArgs("conv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.DeleteConversation(ctx, "conv-1"))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Failure - Zero affected rows maps to ErrNotFound", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		mockDB.ExpectExec("UPDATE conversations SET title").
			WithArgs("New title", sqlmock.AnyArg(), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec("DELETE FROM conversations WHERE id").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.UpdateConversationTitle(ctx, "missing", "New title"), repository.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteConversation(ctx, "missing"), repository.ErrNotFound)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestSQLiteRepository_Settings(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Reads all pairs", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		rows := sqlmock.NewRows([]string{"key", "value"}).
			AddRow("system_prompt", "Be kind.").
			AddRow("api_key_openai", "sk-test")
		mockDB.ExpectQuery("SELECT key, value FROM settings").WillReturnRows(rows)

		settings, err := repo.GetSettings(ctx)

		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"system_prompt":  "Be kind.",
			"api_key_openai": "sk-test",
		}, settings)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("Success - Upserts one pair", func(t *testing.T) {
		repo, db, mockDB := setupSQLiteRepository(t)
		defer func() { _ = db.Close() }()

		mockDB.ExpectExec("INSERT INTO settings").
			WithArgs("system_prompt", "Be kind.").
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.SetSetting(ctx, "system_prompt", "Be kind."))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}
