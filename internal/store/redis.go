package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bazai/stems-api/internal/model"
)

const (
	jobKeyPrefix        = "stem:result:"
	userKeyPrefix       = "stem:user:"
	emailIndexKeyPrefix = "stem:user:email:"
	historyKeyPrefix    = "stem:history:"
	historyIDsKeyPrefix = "stem:history:ids:"
)

// RedisStore implements ResultStore on Redis. History dedup uses a
// set-membership guard (SADD reports whether the id was new), which makes
// the insert-if-absent atomic under concurrent pollers.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) GetJob(ctx context.Context, taskID string) (*model.StemJob, error) {
	data, err := s.redis.Get(ctx, jobKeyPrefix+taskID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job model.StemJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) PutJob(ctx context.Context, job *model.StemJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.redis.Set(ctx, jobKeyPrefix+job.TaskID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordJobResult(ctx context.Context, taskID string, result *model.StemResult, kind model.JobKind) error {
	job, err := s.GetJob(ctx, taskID)
	if err != nil {
		if err != ErrJobNotFound {
			return err
		}
		// Webhook can land before the pending record is written.
		job = &model.StemJob{TaskID: taskID, CreatedAt: time.Now()}
	}

	if job.Status.Terminal() {
		return nil
	}

	now := time.Now()
	job.Status = model.JobStatusSuccess
	job.Stems = result
	job.Kind = kind
	job.CompletedAt = &now

	return s.PutJob(ctx, job)
}

func (s *RedisStore) AppendHistoryOnce(ctx context.Context, ownerID string, entry model.HistoryEntry) (bool, error) {
	idsKey := historyIDsKeyPrefix + ownerID
	listKey := historyKeyPrefix + ownerID

	added, err := s.redis.SAdd(ctx, idsKey, entry.TaskID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve history slot: %w", err)
	}
	if added == 0 {
		return false, nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal history entry: %w", err)
	}
	if err := s.redis.LPush(ctx, listKey, data).Err(); err != nil {
		return false, fmt.Errorf("failed to push history entry: %w", err)
	}

	if err := s.evictOverflow(ctx, ownerID); err != nil {
		return true, err
	}
	return true, nil
}

// evictOverflow drops entries past the cap and releases their ids so an
// evicted task could in principle be recorded again.
func (s *RedisStore) evictOverflow(ctx context.Context, ownerID string) error {
	listKey := historyKeyPrefix + ownerID

	length, err := s.redis.LLen(ctx, listKey).Result()
	if err != nil {
		return fmt.Errorf("failed to measure history: %w", err)
	}
	if length <= model.HistoryCap {
		return nil
	}

	evicted, err := s.redis.LRange(ctx, listKey, model.HistoryCap, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read history overflow: %w", err)
	}
	for _, raw := range evicted {
		var old model.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &old); err != nil {
			continue
		}
		s.redis.SRem(ctx, historyIDsKeyPrefix+ownerID, old.TaskID)
	}

	if err := s.redis.LTrim(ctx, listKey, 0, model.HistoryCap-1).Err(); err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

func (s *RedisStore) GetHistory(ctx context.Context, ownerID string) ([]model.HistoryEntry, error) {
	raw, err := s.redis.LRange(ctx, historyKeyPrefix+ownerID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]model.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry model.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) RegisterOwner(ctx context.Context, ownerID, email string) error {
	if ownerID == "" {
		return nil
	}
	record := map[string]string{"userId": ownerID, "email": email}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal owner: %w", err)
	}
	if err := s.redis.Set(ctx, userKeyPrefix+ownerID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to register owner: %w", err)
	}
	if email != "" {
		key := emailIndexKeyPrefix + strings.ToLower(email)
		if err := s.redis.Set(ctx, key, ownerID, 0).Err(); err != nil {
			return fmt.Errorf("failed to index owner email: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) ResolveOwner(ctx context.Context, ownerRef, email string) (string, error) {
	if ownerRef != "" {
		exists, err := s.redis.Exists(ctx, userKeyPrefix+ownerRef).Result()
		if err != nil {
			return "", fmt.Errorf("failed to look up owner: %w", err)
		}
		if exists > 0 {
			return ownerRef, nil
		}
	}

	if email != "" {
		ownerID, err := s.redis.Get(ctx, emailIndexKeyPrefix+strings.ToLower(email)).Result()
		if err == nil && ownerID != "" {
			return ownerID, nil
		}
		if err != nil && err != redis.Nil {
			return "", fmt.Errorf("failed to look up owner by email: %w", err)
		}
	}

	return "", nil
}
