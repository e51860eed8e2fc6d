package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/pdfchat-core/server/internal/agent/model"
	errx "github.com/pdfchat-core/server/internal/core/error"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

// RedisCheckpointStore persists conversation state in Redis: message
// history as a list of JSON messages, scope metadata as a companion key.
type RedisCheckpointStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

type scopeRecord struct {
	Scope     *model.DocumentScope `json:"scope,omitempty"`
	GlobalRAG bool                 `json:"global_rag,omitempty"`
}

func NewRedisCheckpointStore(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointStore) messagesKey(threadID string) string {
	return fmt.Sprintf("conversation:%s:messages", threadID)
}

func (r *RedisCheckpointStore) scopeKey(threadID string) string {
	return fmt.Sprintf("conversation:%s:scope", threadID)
}

func (r *RedisCheckpointStore) AppendMessages(ctx context.Context, threadID string, messages ...*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	key := r.messagesKey(threadID)

	values := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, b)
	}

	if err := r.rdb.RPush(ctx, key, values...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push messages to redis")
		return errx.WrapRedis(err)
	}
	return r.touch(ctx, key)
}

// touch extends the key TTL when retention is bounded.
func (r *RedisCheckpointStore) touch(ctx context.Context, key string) error {
	if r.ttl <= 0 {
		return nil
	}
	if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
		return errx.WrapRedis(err)
	} else if !ok {
		logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on conversation key")
	}
	return nil
}

func (r *RedisCheckpointStore) LoadState(ctx context.Context, threadID string) (*model.ConversationState, error) {
	st := &model.ConversationState{ThreadID: threadID, Messages: []*schema.Message{}}

	rows, err := r.rdb.LRange(ctx, r.messagesKey(threadID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load conversation history from redis")
		return nil, errx.WrapRedis(err)
	}
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		st.Messages = append(st.Messages, &m)
	}

	raw, err := r.rdb.Get(ctx, r.scopeKey(threadID)).Result()
	if err != nil {
		if err == redis.Nil {
			return st, nil
		}
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load scope from redis")
		return nil, errx.WrapRedis(err)
	}
	var rec scopeRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal scope: %w", err)
	}
	st.DocumentScope = rec.Scope
	st.GlobalRAG = rec.GlobalRAG
	return st, nil
}

func (r *RedisCheckpointStore) SaveScope(ctx context.Context, threadID string, scope *model.DocumentScope, globalRAG bool) error {
	b, err := json.Marshal(scopeRecord{Scope: scope, GlobalRAG: globalRAG})
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}
	key := r.scopeKey(threadID)
	if err := r.rdb.Set(ctx, key, b, r.ttlOrZero()).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save scope to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointStore) ttlOrZero() time.Duration {
	if r.ttl > 0 {
		return r.ttl
	}
	return 0
}

func (r *RedisCheckpointStore) ClearHistory(ctx context.Context, threadID string) error {
	if err := r.rdb.Del(ctx, r.messagesKey(threadID), r.scopeKey(threadID)).Err(); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to delete conversation history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointStore) GetMessageCount(ctx context.Context, threadID string) (int, error) {
	n, err := r.rdb.LLen(ctx, r.messagesKey(threadID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.CheckpointRepository = (*RedisCheckpointStore)(nil)
