package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	// PresenceTTL bounds how long an entry survives without a heartbeat, so a
	// crashed relay does not leave users online forever.
	PresenceTTL = 90 * time.Second
)

type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

// SetPresence sets or refreshes the presence for a user with automatic TTL.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now()

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	err = r.client.Set(ctx, presenceKey(presence.UserID), data, PresenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

func (r *RedisPresenceRepository) DeletePresence(ctx context.Context, userID models.UserID) error {
	err := r.client.Del(ctx, presenceKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	return nil
}

// GetBulkPresence retrieves presence for multiple users in a single round trip.
func (r *RedisPresenceRepository) GetBulkPresence(ctx context.Context, userIDs []models.UserID) (map[models.UserID]models.Presence, error) {
	presenceMap := make(map[models.UserID]models.Presence, len(userIDs))
	if len(userIDs) == 0 {
		return presenceMap, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	for i, result := range results {
		userID := userIDs[i]

		data, ok := result.(string)
		if !ok {
			presenceMap[userID] = *offline(userID)
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			// If we can't unmarshal, treat as offline
			presenceMap[userID] = *offline(userID)
			continue
		}

		presenceMap[userID] = presence
	}

	return presenceMap, nil
}

func offline(userID models.UserID) *models.Presence {
	return &models.Presence{
		UserID: userID,
		Status: string(models.StatusOffline),
	}
}

func presenceKey(userID models.UserID) string {
	return presenceKeyPrefix + string(userID)
}
