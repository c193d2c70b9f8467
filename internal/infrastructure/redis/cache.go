package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firetrack360/identity/internal/config"
	"github.com/firetrack360/identity/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Key layout: one canonical record per account plus two small index entries
// mapping a lookup field to the account id. A single account therefore
// occupies three cache slots, but the payload is stored only once.
const (
	recordKeyPrefix = "user:id:"
	emailKeyPrefix  = "user:email:"
	phoneKeyPrefix  = "user:phone:"
)

// NewClient creates a Redis client from config.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// UserCache is the fast lookup tier of the user directory. It is never the
// system of record: entries expire after ttl, and every method tolerates the
// backing Redis being flushed or stale.
type UserCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUserCache(rdb *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{rdb: rdb, ttl: ttl}
}

// record is the cache wire shape. domain.User's JSON tags hide the secret
// bearing fields from API responses, so the cache keeps its own encoding
// that round-trips the full row.
type record struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Verified     bool      `json:"verified"`
	PendingToken *string   `json:"pending_token"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toRecord(u *domain.User) record {
	return record{
		UserID:       u.UserID,
		Email:        u.Email,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Verified:     u.Verified,
		PendingToken: u.PendingToken,
		Version:      u.Version,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r record) toUser() *domain.User {
	return &domain.User{
		UserID:       r.UserID,
		Email:        r.Email,
		Phone:        r.Phone,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Verified:     r.Verified,
		PendingToken: r.PendingToken,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// GetByID returns the cached user, a hit flag, and any transport error.
// A miss is (nil, false, nil) — never an error.
func (c *UserCache) GetByID(ctx context.Context, userID string) (*domain.User, bool, error) {
	data, err := c.rdb.Get(ctx, recordKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry is treated as a miss; it will be rewritten on the
		// next store read.
		return nil, false, nil
	}
	return rec.toUser(), true, nil
}

func (c *UserCache) GetByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	return c.getByIndex(ctx, emailKeyPrefix+email)
}

func (c *UserCache) GetByPhone(ctx context.Context, phone string) (*domain.User, bool, error) {
	return c.getByIndex(ctx, phoneKeyPrefix+phone)
}

// GetByIdentifier resolves a value that may be either an email or a phone.
func (c *UserCache) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, bool, error) {
	u, ok, err := c.getByIndex(ctx, emailKeyPrefix+identifier)
	if err != nil || ok {
		return u, ok, err
	}
	return c.getByIndex(ctx, phoneKeyPrefix+identifier)
}

func (c *UserCache) getByIndex(ctx context.Context, indexKey string) (*domain.User, bool, error) {
	userID, err := c.rdb.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return c.GetByID(ctx, userID)
}

// Set writes the canonical record and both index entries, each with the
// configured TTL, in one pipelined round trip.
func (c *UserCache) Set(ctx context.Context, u *domain.User) error {
	data, err := json.Marshal(toRecord(u))
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, recordKeyPrefix+u.UserID, data, c.ttl)
	pipe.Set(ctx, emailKeyPrefix+u.Email, u.UserID, c.ttl)
	pipe.Set(ctx, phoneKeyPrefix+u.Phone, u.UserID, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes all three cache slots for the given user state. Callers
// invalidating after an update must pass the OLD state so stale index keys
// are cleared too.
func (c *UserCache) Delete(ctx context.Context, u *domain.User) error {
	if err := c.rdb.Del(ctx,
		recordKeyPrefix+u.UserID,
		emailKeyPrefix+u.Email,
		phoneKeyPrefix+u.Phone,
	).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
