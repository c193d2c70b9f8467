package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firetrack360/identity/internal/domain"
	"github.com/firetrack360/identity/internal/infrastructure/dynamo"
)

// maxUpdateRetries bounds the optimistic-concurrency retry loop. Contention
// on a single account is rare; three attempts is plenty before giving up.
const maxUpdateRetries = 3

// Service is the cache-aside user directory: a durable store fronted by a
// fast cache. The cache is never the system of record — it may be empty,
// stale within its TTL, or flushed at any time without correctness loss.
type Service interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	CreateMany(ctx context.Context, users []*domain.User) ([]*domain.User, error)
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error)
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	CreateMany(ctx context.Context, users []*domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdateConditional(ctx context.Context, userID string, expectedVersion int64, updates map[string]interface{}) error
}

type userCache interface {
	GetByID(ctx context.Context, userID string) (*domain.User, bool, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, bool, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, bool, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, bool, error)
	Set(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, u *domain.User) error
}

type service struct {
	store userStore
	cache userCache
}

type ServiceDeps struct {
	Store userStore
	Cache userCache
}

func NewService(deps ServiceDeps) Service {
	return &service{store: deps.Store, cache: deps.Cache}
}

// Create durably persists the user and then populates the cache. Uniqueness
// of email and phone is enforced transactionally inside the store; the cache
// is never consulted for conflict checks.
func (s *service) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	stamp(u)
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, u)
	return u, nil
}

// CreateMany is the all-or-nothing batched create.
func (s *service) CreateMany(ctx context.Context, users []*domain.User) ([]*domain.User, error) {
	for _, u := range users {
		stamp(u)
	}
	if err := s.store.CreateMany(ctx, users); err != nil {
		return nil, err
	}
	for _, u := range users {
		s.cacheSet(ctx, u)
	}
	return users, nil
}

func (s *service) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.find(ctx,
		func() (*domain.User, bool, error) { return s.cache.GetByID(ctx, userID) },
		func() (*domain.User, error) { return s.store.Get(ctx, userID) },
	)
}

func (s *service) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.find(ctx,
		func() (*domain.User, bool, error) { return s.cache.GetByEmail(ctx, email) },
		func() (*domain.User, error) { return s.store.GetByEmail(ctx, email) },
	)
}

func (s *service) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return s.find(ctx,
		func() (*domain.User, bool, error) { return s.cache.GetByPhone(ctx, phone) },
		func() (*domain.User, error) { return s.store.GetByPhone(ctx, phone) },
	)
}

// FindByIdentifier looks the value up as an email first, then as a phone.
func (s *service) FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return s.find(ctx,
		func() (*domain.User, bool, error) { return s.cache.GetByIdentifier(ctx, identifier) },
		func() (*domain.User, error) {
			u, err := s.store.GetByEmail(ctx, identifier)
			if errors.Is(err, domain.ErrNotFound) {
				return s.store.GetByPhone(ctx, identifier)
			}
			return u, err
		},
	)
}

// find consults the cache first and falls back to the durable store,
// repopulating the cache on a store hit. Cache errors degrade to misses.
func (s *service) find(ctx context.Context, fromCache func() (*domain.User, bool, error), fromStore func() (*domain.User, error)) (*domain.User, error) {
	u, ok, err := fromCache()
	if err != nil {
		slog.Warn("user cache read failed", "err", err)
	} else if ok {
		return u, nil
	}

	u, err = fromStore()
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, u)
	return u, nil
}

// Update performs a read-modify-write against the durable store under
// optimistic concurrency, so concurrent writers to the same account are
// linearized. On success the old cache slots are invalidated and the new
// state repopulated before returning.
func (s *service) Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		current, err := s.store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		err = s.store.UpdateConditional(ctx, userID, current.Version, updates)
		if errors.Is(err, dynamo.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		updated, err := s.store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		// Invalidate with the pre-update state so stale index keys go too.
		if err := s.cache.Delete(ctx, current); err != nil {
			slog.Warn("user cache invalidation failed", "user_id", userID, "err", err)
		}
		s.cacheSet(ctx, updated)
		return updated, nil
	}
	return nil, fmt.Errorf("update of user %s lost %d version races", userID, maxUpdateRetries)
}

// stamp sets the initial version and timestamps on a new record.
func stamp(u *domain.User) {
	now := time.Now().UTC()
	u.Version = 1
	u.CreatedAt = now
	u.UpdatedAt = now
}

// cacheSet writes through to the cache; failures are logged, never fatal.
// A stale or missing entry self-heals on the next read miss.
func (s *service) cacheSet(ctx context.Context, u *domain.User) {
	if err := s.cache.Set(ctx, u); err != nil {
		slog.Warn("user cache write failed", "user_id", u.UserID, "err", err)
	}
}
