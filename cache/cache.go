// Package cache holds the redis-backed helpers: notification de-duplication
// and the staff presence snapshot.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gtarp/main_backend/config"
	ds "gtarp/main_backend/database_service"
)

// Connect opens a redis client and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

const notifyKeyPrefix = "portal:notify:"

// NotificationDeduplicator makes a notification for (scope, subject, status)
// go out at most once per TTL.
type NotificationDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewNotificationDeduplicator(client *redis.Client, ttl time.Duration) *NotificationDeduplicator {
	return &NotificationDeduplicator{client: client, ttl: ttl}
}

// buildKey formats portal:notify:{scope}:{subject}:{status}
func (d *NotificationDeduplicator) buildKey(scope, subjectID, status string) string {
	return fmt.Sprintf("%s%s:%s:%s", notifyKeyPrefix, scope, subjectID, status)
}

// TryAcquire atomically claims the notification. false means another attempt
// already claimed or delivered it.
func (d *NotificationDeduplicator) TryAcquire(ctx context.Context, scope, subjectID, status string) (bool, error) {
	acquired, err := d.client.SetNX(ctx, d.buildKey(scope, subjectID, status), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire notification key: %w", err)
	}
	return acquired, nil
}

// Release drops the claim after a failed delivery so a retry can send it.
func (d *NotificationDeduplicator) Release(ctx context.Context, scope, subjectID, status string) error {
	if err := d.client.Del(ctx, d.buildKey(scope, subjectID, status)).Err(); err != nil {
		return fmt.Errorf("failed to release notification key: %w", err)
	}
	return nil
}

const presenceKeyPrefix = "portal:presence:"

// PresenceCache keeps the last staff availability snapshot per department so
// dashboards polling every few seconds do not each hit the database.
type PresenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceCache(client *redis.Client, ttl time.Duration) *PresenceCache {
	return &PresenceCache{client: client, ttl: ttl}
}

func presenceKey(department string) string {
	if department == "" {
		department = "all"
	}
	return presenceKeyPrefix + department
}

func (p *PresenceCache) Store(ctx context.Context, department string, rows []ds.StaffAvailability) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, presenceKey(department), raw, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store presence: %w", err)
	}
	return nil
}

// Load returns the cached snapshot; ok is false on a miss.
func (p *PresenceCache) Load(ctx context.Context, department string) ([]ds.StaffAvailability, bool, error) {
	raw, err := p.client.Get(ctx, presenceKey(department)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load presence: %w", err)
	}
	var rows []ds.StaffAvailability
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

// Invalidate drops the snapshot of department and the combined one.
func (p *PresenceCache) Invalidate(ctx context.Context, department string) error {
	keys := []string{presenceKey("")}
	if department != "" {
		keys = append(keys, presenceKey(department))
	}
	return p.client.Del(ctx, keys...).Err()
}

// InvalidateAll drops every department snapshot, for changes such as a
// workload rebalance that touch more than one department.
func (p *PresenceCache) InvalidateAll(ctx context.Context) error {
	var keys []string
	iter := p.client.Scan(ctx, 0, presenceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan presence keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return p.client.Del(ctx, keys...).Err()
}
