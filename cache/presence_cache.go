package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"comproom/model"

	"github.com/go-redis/redis/v8"
)

const (
	presenceKey    = "session:%s:presence:%s" // String with TTL, projectID:userID
	onlineSetKey   = "session:%s:online"      // Set of user ids seen recently
	presenceTTL    = 60 * time.Second
	onlineSetTTL   = 24 * time.Hour
)

// PresenceCache mirrors presence heartbeats into redis so online
// counts survive a relay restart. Presence is still ephemeral: every
// key carries a TTL.
type PresenceCache struct {
	client *redis.Client
}

// NewPresenceCache returns a cache bound to the shared client.
func NewPresenceCache() *PresenceCache {
	return &PresenceCache{client: RedisClient}
}

// UpdatePresence refreshes a user's heartbeat key and membership in
// the online set.
func (c *PresenceCache) UpdatePresence(ctx context.Context, projectID string, presence *model.Presence) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	key := fmt.Sprintf(presenceKey, projectID, presence.UserID)
	setKey := fmt.Sprintf(onlineSetKey, projectID)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, presenceTTL)
	pipe.SAdd(ctx, setKey, presence.UserID)
	pipe.Expire(ctx, setKey, onlineSetTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RemovePresence drops a user's heartbeat on leave.
func (c *PresenceCache) RemovePresence(ctx context.Context, projectID, userID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(presenceKey, projectID, userID))
	pipe.SRem(ctx, fmt.Sprintf(onlineSetKey, projectID), userID)
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveCount returns how many users still hold a live heartbeat key,
// pruning expired members from the online set as it goes.
func (c *PresenceCache) ActiveCount(ctx context.Context, projectID string) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("redis client not initialized")
	}

	setKey := fmt.Sprintf(onlineSetKey, projectID)
	userIDs, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, err
	}

	var count int64
	for _, userID := range userIDs {
		exists, err := c.client.Exists(ctx, fmt.Sprintf(presenceKey, projectID, userID)).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			count++
		} else {
			c.client.SRem(ctx, setKey, userID)
		}
	}
	return count, nil
}
