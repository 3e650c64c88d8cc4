/*
Package cache provides an optional read-through cache for the follow-up
projection.

PURPOSE:
  The follow-up list view resolves every downstream stage per requisition,
  which multiplies store round trips on large organizations. A short-TTL
  cache in front of the projector keeps the list endpoint cheap without
  changing projection semantics: writes invalidate the owning org's views,
  and the TTL bounds staleness when an invalidation is missed.

IMPLEMENTATIONS:
  Noop:  Always misses. Used when no Redis address is configured.
  Redis: go-redis backed, JSON-encoded records keyed per (org, filter).
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/procurement-engine/procurement"
)

// ErrMiss is returned by Get when no cached value exists for the key.
var ErrMiss = errors.New("cache miss")

// FollowUpCache stores projected follow-up records keyed by organization
// and filter fingerprint.
type FollowUpCache interface {
	Get(ctx context.Context, key string) ([]procurement.FollowUpRecord, error)
	Set(ctx context.Context, key string, records []procurement.FollowUpRecord) error
	// Invalidate drops every cached view for one organization.
	Invalidate(ctx context.Context, orgID string) error
}

// Key builds the cache key for one org's filtered view.
func Key(orgID string, f procurement.FollowUpFilters) string {
	state, kind, requester := "", "", ""
	if f.State != nil {
		state = string(*f.State)
	}
	if f.Kind != nil {
		kind = string(*f.Kind)
	}
	if f.RequesterID != nil {
		requester = *f.RequesterID
	}
	return fmt.Sprintf("followup:%s:%s:%s:%s", orgID, state, kind, requester)
}

// =============================================================================
// NOOP
// =============================================================================

// Noop is a FollowUpCache that never holds anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]procurement.FollowUpRecord, error) {
	return nil, ErrMiss
}
func (Noop) Set(context.Context, string, []procurement.FollowUpRecord) error { return nil }
func (Noop) Invalidate(context.Context, string) error                        { return nil }

// =============================================================================
// REDIS
// =============================================================================

// Redis caches follow-up views in Redis with a fixed TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]procurement.FollowUpRecord, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var records []procurement.FollowUpRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		// Corrupt entry: treat as a miss so the projector recomputes.
		return nil, ErrMiss
	}
	return records, nil
}

func (r *Redis) Set(ctx context.Context, key string, records []procurement.FollowUpRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, orgID string) error {
	iter := r.client.Scan(ctx, 0, fmt.Sprintf("followup:%s:*", orgID), 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
