package queue

import (
	"context"
	"fmt"

	"storefront/scraper/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// FailureJournal keeps enrichment failures for inspection. Entries are never
// consumed or retried.
type FailureJournal interface {
	Record(ctx context.Context, t *task.EnrichmentFailureTask) (string, error) // Returns message ID
	Recent(ctx context.Context, n int64) ([]task.EnrichmentFailureTask, error)
}

type RedisJournal struct {
	redisClient  *redis.Client
	streamPrefix string
	maxLen       int64
}

func NewRedisJournal(redisClient *redis.Client, keyPrefix string, maxLen int64) *RedisJournal {
	return &RedisJournal{
		redisClient:  redisClient,
		streamPrefix: keyPrefix + ":stream:",
		maxLen:       maxLen,
	}
}

func (q *RedisJournal) stream() string {
	return q.streamPrefix + (&task.EnrichmentFailureTask{}).TaskType()
}

// Record appends the task to the journal stream, trimming it to roughly
// maxLen entries.
func (q *RedisJournal) Record(ctx context.Context, t *task.EnrichmentFailureTask) (string, error) {
	taskType := t.TaskType()
	streamName := q.streamPrefix + taskType

	taskValue, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			"task_type": taskType,
			"task_data": string(taskValue),
		},
	}
	if q.maxLen > 0 {
		args.MaxLen = q.maxLen
		args.Approx = true
	}

	messageID, err := q.redisClient.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", streamName, err)
	}

	log.Debugf("Added task %s to stream %s with message ID: %s", taskType, streamName, messageID)
	return messageID, nil
}

// Recent returns up to n entries, newest first.
func (q *RedisJournal) Recent(ctx context.Context, n int64) ([]task.EnrichmentFailureTask, error) {
	if n <= 0 {
		return nil, nil
	}

	messages, err := q.redisClient.XRevRangeN(ctx, q.stream(), "+", "-", n).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read Redis stream %s: %w", q.stream(), err)
	}

	out := make([]task.EnrichmentFailureTask, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["task_data"].(string)
		if !ok {
			log.Warnf("⚠️ Journal entry %s has no task data, skipping", msg.ID)
			continue
		}
		t, err := task.UnmarshalTask[*task.EnrichmentFailureTask]([]byte(data))
		if err != nil || t == nil {
			log.Warnf("⚠️ Journal entry %s is not a failure task: %v", msg.ID, err)
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

// NoopJournal drops every record. Used when Redis is disabled.
type NoopJournal struct{}

func (NoopJournal) Record(context.Context, *task.EnrichmentFailureTask) (string, error) {
	return "", nil
}

func (NoopJournal) Recent(context.Context, int64) ([]task.EnrichmentFailureTask, error) {
	return nil, nil
}
