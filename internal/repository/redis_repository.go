package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KuzeyMurathan/shadchat/internal/model"
)

// redisRepository stores each conversation as one JSON document plus a
// sorted-set index ordered by recency (negative timestamps, so ZRange walks
// newest first). Settings live in a single hash.
type redisRepository struct {
	rdb *redis.Client
}

func NewRedisRepository(rdb *redis.Client) Repository {
	return &redisRepository{rdb: rdb}
}

// Key Generation Helpers
func (r *redisRepository) conversationKey(id string) string { return fmt.Sprintf("conversation:%s", id) }
func (r *redisRepository) indexKey() string                 { return "conversations" }
func (r *redisRepository) settingsKey() string              { return "settings" }

func (r *redisRepository) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	doc, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("could not marshal conversation: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.conversationKey(conv.ID), doc, 0)
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(-conv.UpdatedAt.UnixNano()), Member: conv.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	doc, err := r.rdb.Get(ctx, r.conversationKey(conversationID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(doc), &conv); err != nil {
		return nil, fmt.Errorf("could not unmarshal conversation: %w", err)
	}
	return &conv, nil
}

func (r *redisRepository) ListConversations(ctx context.Context) ([]model.Summary, error) {
	ids, err := r.rdb.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.Summary{}, nil
		}
		return nil, err
	}

	summaries := make([]model.Summary, 0, len(ids))
	for _, id := range ids {
		conv, err := r.GetConversation(ctx, id)
		if err != nil {
			continue
		}
		summaries = append(summaries, conv.Summary())
	}
	// The index orders by recency; pinned conversations float to the top
	// within that order.
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Pinned && !summaries[j].Pinned
	})
	return summaries, nil
}

func (r *redisRepository) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	conv, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.Title = newTitle
	conv.UpdatedAt = time.Now()
	return r.SaveConversation(ctx, conv)
}

func (r *redisRepository) SetConversationPinned(ctx context.Context, conversationID string, pinned bool) error {
	conv, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.Pinned = pinned
	conv.UpdatedAt = time.Now()
	return r.SaveConversation(ctx, conv)
}

func (r *redisRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	exists, err := r.rdb.Exists(ctx, r.conversationKey(conversationID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.conversationKey(conversationID))
	pipe.ZRem(ctx, r.indexKey(), conversationID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to execute conversation deletion pipeline: %w", err)
	}
	return nil
}

func (r *redisRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	settings, err := r.rdb.HGetAll(ctx, r.settingsKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return settings, nil
}

func (r *redisRepository) SetSetting(ctx context.Context, key, value string) error {
	return r.rdb.HSet(ctx, r.settingsKey(), key, value).Err()
}
