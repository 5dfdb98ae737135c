package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-orchestrator/pkg/redis"
)

// ProfileStore exposes a customer's recent activity profiles and accepts
// new observations. An absent profile is (nil, nil), which the checks
// treat as neutral.
type ProfileStore interface {
	RecentLocations(ctx context.Context, customerID string) ([]map[string]interface{}, error)
	KnownDevices(ctx context.Context, customerID string) ([]map[string]interface{}, error)
	BehaviorPatterns(ctx context.Context, customerID string) ([]map[string]interface{}, error)
	RecordLocation(ctx context.Context, customerID string, location map[string]interface{}) error
	RecordDevice(ctx context.Context, customerID string, device map[string]interface{}) error
}

// RedisProfileStore stores profiles as JSON arrays under per-customer keys.
type RedisProfileStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProfileStore(client *redis.Client, ttl time.Duration) *RedisProfileStore {
	return &RedisProfileStore{client: client, ttl: ttl}
}

func (s *RedisProfileStore) RecentLocations(ctx context.Context, customerID string) ([]map[string]interface{}, error) {
	return s.get(ctx, fmt.Sprintf("customer_locations:%s", customerID))
}

func (s *RedisProfileStore) KnownDevices(ctx context.Context, customerID string) ([]map[string]interface{}, error) {
	return s.get(ctx, fmt.Sprintf("customer_devices:%s", customerID))
}

func (s *RedisProfileStore) BehaviorPatterns(ctx context.Context, customerID string) ([]map[string]interface{}, error) {
	return s.get(ctx, fmt.Sprintf("customer_patterns:%s", customerID))
}

// RecordLocation appends a location observation to the customer's profile.
func (s *RedisProfileStore) RecordLocation(ctx context.Context, customerID string, location map[string]interface{}) error {
	return s.append(ctx, fmt.Sprintf("customer_locations:%s", customerID), location)
}

// RecordDevice appends a device observation to the customer's profile.
func (s *RedisProfileStore) RecordDevice(ctx context.Context, customerID string, device map[string]interface{}) error {
	return s.append(ctx, fmt.Sprintf("customer_devices:%s", customerID), device)
}

func (s *RedisProfileStore) get(ctx context.Context, key string) ([]map[string]interface{}, error) {
	exists, err := s.client.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	data, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var profiles []map[string]interface{}
	if err := json.Unmarshal([]byte(data), &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *RedisProfileStore) append(ctx context.Context, key string, entry map[string]interface{}) error {
	profiles, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	profiles = append(profiles, entry)

	// Bound profile growth
	const maxEntries = 20
	if len(profiles) > maxEntries {
		profiles = profiles[len(profiles)-maxEntries:]
	}

	data, err := json.Marshal(profiles)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl)
}
