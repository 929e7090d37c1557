// Package progress implements the job progress channel: a
// process-wide map of job id to a fan-out of progress events, bridged
// across processes via Redis pub/sub. The bridge forwards a remote event
// only to a job this process has opened; a subscriber in a process that
// never opened the job gets a closed channel and no events.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pixforge/genflow/internal/infrastructure/logger"
)

// Event is one progress message for a job.
type Event struct {
	JobID         int64      `json:"job_id"`
	State         string     `json:"state"`
	Percent       *float64   `json:"percent,omitempty"`
	QueuePosition *int       `json:"queue_position,omitempty"`
	Timestamp     time.Time  `json:"ts"`
	sequence      int64
}

func isTerminalState(state string) bool {
	switch state {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}

const subscriberBufferSize = 16

// channel is the per-job fan-out: one buffered outbound channel per
// subscriber, a cached terminal event for late subscribers, and a
// monotonic sequence counter.
type channel struct {
	mu            sync.Mutex
	subscribers   map[int]chan Event
	nextSubID     int
	closed        bool
	terminalEvent *Event
	seq           int64
}

// Broker owns every open job's progress channel and bridges publishes
// across processes over a Redis pub/sub channel keyed per job.
type Broker struct {
	mu       sync.RWMutex
	channels map[int64]*channel
	redis    *redis.Client
	logger   *logger.Logger
}

// New creates a Broker. redisClient may be nil in tests that only exercise
// single-process fan-out.
func New(redisClient *redis.Client, log *logger.Logger) *Broker {
	return &Broker{
		channels: make(map[int64]*channel),
		redis:    redisClient,
		logger:   log,
	}
}

func redisChannelName(jobID int64) string {
	return fmt.Sprintf("genflow:progress:%d", jobID)
}

// Open creates the channel for a job, called on the pending -> running
// transition. Calling Open on an already-open job is a no-op; a closed
// placeholder left by an early Subscribe is replaced by a fresh channel.
func (b *Broker) Open(jobID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.channels[jobID]; ok {
		existing.mu.Lock()
		placeholder := existing.closed && existing.terminalEvent == nil
		existing.mu.Unlock()
		if !placeholder {
			return
		}
	}
	b.channels[jobID] = &channel{subscribers: make(map[int]chan Event)}
}

// Publish pushes an event to every local subscriber (non-blocking, dropping
// on a full subscriber buffer) and republishes it on Redis, where another
// process's bridge delivers it to that process's subscribers if it has
// opened the job.
func (b *Broker) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	ch, ok := b.channels[evt.JobID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	ch.seq++
	evt.sequence = ch.seq
	if isTerminalState(evt.State) {
		terminal := evt
		ch.terminalEvent = &terminal
	}
	subs := make([]chan Event, 0, len(ch.subscribers))
	for _, s := range ch.subscribers {
		subs = append(subs, s)
	}
	ch.mu.Unlock()

	for _, s := range subs {
		select {
		case s <- evt:
		default:
			if b.logger != nil {
				b.logger.Warn("progress subscriber buffer full, dropping event", "job_id", evt.JobID)
			}
		}
	}

	b.publishRemote(ctx, evt)
}

func (b *Broker) publishRemote(ctx context.Context, evt Event) {
	if b.redis == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.redis.Publish(ctx, redisChannelName(evt.JobID), payload).Err(); err != nil {
		if b.logger != nil {
			b.logger.Warn("failed to publish progress event to redis", "job_id", evt.JobID, "error", err)
		}
	}
}

// Close marks a job's channel terminal and disconnects every subscriber.
// Late subscribers after Close still receive the cached terminal event
// followed by channel closure (EOF).
func (b *Broker) Close(jobID int64) {
	b.mu.Lock()
	ch, ok := b.channels[jobID]
	b.mu.Unlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	ch.closed = true
	for id, s := range ch.subscribers {
		close(s)
		delete(ch.subscribers, id)
	}
	ch.mu.Unlock()
}

// Subscribe returns a channel of progress events for a job and an
// unsubscribe function the caller must invoke when done. If the job's
// channel is already closed, the returned channel yields only the cached
// terminal event (if any) before being closed itself.
func (b *Broker) Subscribe(jobID int64) (<-chan Event, func()) {
	b.mu.Lock()
	ch, ok := b.channels[jobID]
	if !ok {
		ch = &channel{subscribers: make(map[int]chan Event), closed: true}
		b.channels[jobID] = ch
	}
	b.mu.Unlock()

	ch.mu.Lock()
	defer ch.mu.Unlock()

	out := make(chan Event, subscriberBufferSize)
	if ch.closed {
		if ch.terminalEvent != nil {
			out <- *ch.terminalEvent
		}
		close(out)
		return out, func() {}
	}

	id := ch.nextSubID
	ch.nextSubID++
	ch.subscribers[id] = out

	unsubscribe := func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		if s, ok := ch.subscribers[id]; ok {
			delete(ch.subscribers, id)
			close(s)
		}
	}
	return out, unsubscribe
}

// StartRedisBridge subscribes to the progress pattern on Redis and forwards
// any event for a job this process has an open channel for to its local
// subscribers, without re-publishing (avoiding an infinite loop across
// instances). Call once per process; it runs until ctx is cancelled.
func (b *Broker) StartRedisBridge(ctx context.Context) {
	if b.redis == nil {
		return
	}
	sub := b.redis.PSubscribe(ctx, "genflow:progress:*")
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				b.deliverLocal(evt)
			}
		}
	}()
}

// deliverLocal fans an already-sequenced remote event out to local
// subscribers only, skipping the remote republish Publish would do.
func (b *Broker) deliverLocal(evt Event) {
	b.mu.RLock()
	ch, ok := b.channels[evt.JobID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	ch.mu.Lock()
	if isTerminalState(evt.State) {
		terminal := evt
		ch.terminalEvent = &terminal
	}
	subs := make([]chan Event, 0, len(ch.subscribers))
	for _, s := range ch.subscribers {
		subs = append(subs, s)
	}
	ch.mu.Unlock()
	for _, s := range subs {
		select {
		case s <- evt:
		default:
		}
	}
}

// SubscriberCount reports how many local subscribers are attached to a job.
func (b *Broker) SubscriberCount(jobID int64) int {
	b.mu.RLock()
	ch, ok := b.channels[jobID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subscribers)
}
