package jobengine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	streamKey       = "genflow:jobs"
	consumerGroup   = "genflow:workers"
	cancelKeyPrefix = "genflow:cancel:"
)

// Queue is the durable job handoff broker: a Redis stream with a
// consumer group, so at-least-once delivery is guaranteed and each pending
// message is owned by exactly one consumer until acknowledged.
type Queue struct {
	client   *redis.Client
	consumer string
}

// NewQueue builds a Queue and ensures the consumer group exists.
func NewQueue(ctx context.Context, client *redis.Client, consumerName string) (*Queue, error) {
	q := &Queue{client: client, consumer: consumerName}
	err := client.XGroupCreateMkStream(ctx, streamKey, consumerGroup, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return q, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// Enqueue adds a job id to the stream for worker pickup.
func (q *Queue) Enqueue(ctx context.Context, jobID int64) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"job_id": jobID},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job %d: %w", jobID, err)
	}
	return nil
}

// Message is a claimed stream entry the caller must Ack when processing
// finishes (successfully or not — the job's own state machine records the
// outcome; the queue only needs to know delivery is no longer outstanding).
type Message struct {
	ID    string
	JobID int64
}

// Dequeue blocks up to block for one new message for this consumer.
func (q *Queue) Dequeue(ctx context.Context, block time.Duration) (*Message, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: q.consumer,
		Streams:  []string{streamKey, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job queue: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	entry := streams[0].Messages[0]
	raw, ok := entry.Values["job_id"]
	if !ok {
		return nil, fmt.Errorf("malformed queue entry %s: missing job_id", entry.ID)
	}
	jobID, err := parseJobID(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed queue entry %s: %w", entry.ID, err)
	}
	return &Message{ID: entry.ID, JobID: jobID}, nil
}

func parseJobID(raw any) (int64, error) {
	switch v := raw.(type) {
	case string:
		return strconv.ParseInt(v, 10, 64)
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected job_id type %T", raw)
	}
}

// Ack acknowledges a message, removing it from the group's pending list.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	return q.client.XAck(ctx, streamKey, consumerGroup, messageID).Err()
}

// RequestCancel sets the per-job cancellation flag the worker polls before
// each polling interval and before materialization.
func (q *Queue) RequestCancel(ctx context.Context, jobID int64) error {
	return q.client.Set(ctx, cancelKeyPrefix+strconv.FormatInt(jobID, 10), "1", 24*time.Hour).Err()
}

// IsCancelled reports whether a cancellation flag is set for a job.
func (q *Queue) IsCancelled(ctx context.Context, jobID int64) (bool, error) {
	n, err := q.client.Exists(ctx, cancelKeyPrefix+strconv.FormatInt(jobID, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cancellation flag: %w", err)
	}
	return n > 0, nil
}

// ClearCancel removes a job's cancellation flag once it has reached a
// terminal state, so the key does not linger until its TTL.
func (q *Queue) ClearCancel(ctx context.Context, jobID int64) error {
	return q.client.Del(ctx, cancelKeyPrefix+strconv.FormatInt(jobID, 10)).Err()
}
