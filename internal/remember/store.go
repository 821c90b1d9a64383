// Package remember keeps the last customer details entered on a device so the
// public booking page can pre-fill them on the next visit.
package remember

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when nothing is remembered for the device.
var ErrNotFound = errors.New("remember: not found")

// Customer is the remembered record.
type Customer struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists remembered customers in redis with a sliding TTL.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a store. A non-positive ttl keeps records forever.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: redisClient, ttl: ttl}
}

func (s *Store) key(orgID, deviceID string) string {
	return fmt.Sprintf("randevu:remembered:%s:%s", orgID, deviceID)
}

func validate(orgID, deviceID string) error {
	if strings.TrimSpace(orgID) == "" {
		return errors.New("remember: org id required")
	}
	if strings.TrimSpace(deviceID) == "" {
		return errors.New("remember: device id required")
	}
	return nil
}

// Get returns the record for (orgID, deviceID) or ErrNotFound.
func (s *Store) Get(ctx context.Context, orgID, deviceID string) (*Customer, error) {
	if err := validate(orgID, deviceID); err != nil {
		return nil, err
	}
	data, err := s.redis.Get(ctx, s.key(orgID, deviceID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remember: get: %w", err)
	}

	var c Customer
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("remember: unmarshal: %w", err)
	}
	return &c, nil
}

// Save stores c, resetting the TTL.
func (s *Store) Save(ctx context.Context, orgID, deviceID string, c Customer) error {
	if err := validate(orgID, deviceID); err != nil {
		return err
	}
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	if c.Name == "" || c.Phone == "" {
		return errors.New("remember: name and phone required")
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("remember: marshal: %w", err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key(orgID, deviceID), data, ttl).Err(); err != nil {
		return fmt.Errorf("remember: set: %w", err)
	}
	return nil
}

// Forget deletes the record. Forgetting an unknown device is not an error.
func (s *Store) Forget(ctx context.Context, orgID, deviceID string) error {
	if err := validate(orgID, deviceID); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, s.key(orgID, deviceID)).Err(); err != nil {
		return fmt.Errorf("remember: delete: %w", err)
	}
	return nil
}
