package finalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job asks a worker to build the report for one meeting.
type Job struct {
	ID         string    `json:"id"`
	MeetingID  string    `json:"meeting_id"`
	UserID     string    `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue hands jobs from Trigger to the workers. Dequeue blocks until a job is
// available or ctx is done.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

var ErrQueueClosed = errors.New("finalize queue closed")

// MemoryQueue is an in-process FIFO for single-instance deployments.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   chan Job
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{jobs: make(chan Job, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("finalize queue full (%d jobs)", cap(q.jobs))
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *MemoryQueue) Len() int { return len(q.jobs) }

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}

const defaultRedisKey = "huddle:finalize:jobs"

// RedisQueue is a list-backed queue shared by every API instance: LPUSH to
// enqueue, BRPOP to dequeue.
type RedisQueue struct {
	client *redis.Client
	key    string
	poll   time.Duration
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if strings.TrimSpace(key) == "" {
		key = defaultRedisKey
	}
	return &RedisQueue{client: client, key: key, poll: 2 * time.Second}
}

// DialRedisQueue parses a redis:// URL and checks connectivity.
func DialRedisQueue(ctx context.Context, redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisQueue(client, ""), nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal finalize job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue finalize job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("dequeue finalize job: %w", err)
		}
		// BRPOP answers [key, value].
		if len(res) != 2 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode finalize job: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// NewQueue picks Redis when a URL is configured and memory otherwise.
func NewQueue(ctx context.Context, redisURL string) (Queue, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewMemoryQueue(0), nil
	}
	return DialRedisQueue(ctx, redisURL)
}
