package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MemoryQueue хранит очередь в памяти процесса. Используется, если Redis не настроен.
type MemoryQueue struct {
	mu    sync.Mutex
	items []Message
}

// NewMemoryQueue создаёт пустую очередь в памяти.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, msg)
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return &msg, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// DefaultRedisKey задаёт ключ списка с очередью повторной отправки.
const DefaultRedisKey = "gmailmart:notify:retry"

// RedisOptions описывает подключение к Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisQueue хранит очередь в списке Redis, поэтому сообщения переживают перезапуск бота.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue подключается к Redis и проверяет соединение.
func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := opts.Key
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Push(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (*Message, error) {
	data, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close закрывает соединение с Redis.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
