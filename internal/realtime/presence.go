package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Presence records which users currently hold a notification connection
// anywhere in the deployment.
type Presence interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineAmong(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

const presenceKey = "presence:online"

// RedisPresence keeps the online set in Redis so presence is shared across
// replicas and survives a single node restarting.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func (p *RedisPresence) SetOnline(ctx context.Context, userID uuid.UUID) error {
	if err := p.client.SAdd(ctx, presenceKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("adding to presence set: %w", err)
	}
	return nil
}

func (p *RedisPresence) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if err := p.client.SRem(ctx, presenceKey, userID.String()).Err(); err != nil {
		return fmt.Errorf("removing from presence set: %w", err)
	}
	return nil
}

func (p *RedisPresence) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	online, err := p.client.SIsMember(ctx, presenceKey, userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("checking presence: %w", err)
	}
	return online, nil
}

func (p *RedisPresence) OnlineAmong(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(userIDs) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id.String()
	}
	results, err := p.client.SMIsMember(ctx, presenceKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("checking presence batch: %w", err)
	}
	online := make(map[uuid.UUID]bool, len(userIDs))
	for i, id := range userIDs {
		online[id] = results[i]
	}
	return online, nil
}

// MemoryPresence is the in-process variant used in tests and single-node
// deployments.
type MemoryPresence struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{online: make(map[uuid.UUID]bool)}
}

func (p *MemoryPresence) SetOnline(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = true
	return nil
}

func (p *MemoryPresence) SetOffline(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
	return nil
}

func (p *MemoryPresence) IsOnline(_ context.Context, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID], nil
}

func (p *MemoryPresence) OnlineAmong(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		result[id] = p.online[id]
	}
	return result, nil
}
