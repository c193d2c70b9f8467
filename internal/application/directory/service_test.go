package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/firetrack360/identity/internal/domain"
	"github.com/firetrack360/identity/internal/infrastructure/dynamo"
	rediscache "github.com/firetrack360/identity/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) CreateMany(ctx context.Context, users []*domain.User) error {
	return m.Called(ctx, users).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) UpdateConditional(ctx context.Context, userID string, expectedVersion int64, updates map[string]interface{}) error {
	return m.Called(ctx, userID, expectedVersion, updates).Error(0)
}

type mockUserCache struct{ mock.Mock }

func (m *mockUserCache) GetByID(ctx context.Context, userID string) (*domain.User, bool, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Bool(1), args.Error(2)
}
func (m *mockUserCache) GetByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Bool(1), args.Error(2)
}
func (m *mockUserCache) GetByPhone(ctx context.Context, phone string) (*domain.User, bool, error) {
	args := m.Called(ctx, phone)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Bool(1), args.Error(2)
}
func (m *mockUserCache) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, bool, error) {
	args := m.Called(ctx, identifier)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Bool(1), args.Error(2)
}
func (m *mockUserCache) Set(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserCache) Delete(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

// --- helpers ---

func newRealCache(t *testing.T) *rediscache.UserCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rediscache.NewUserCache(rdb, time.Hour)
}

func baseUser() *domain.User {
	return &domain.User{
		UserID:  "u1",
		Email:   "a@x.com",
		Phone:   "+1000",
		Role:    domain.RoleClient,
		Version: 1,
	}
}

// --- Create tests ---

func TestCreate_ConflictPropagates(t *testing.T) {
	us := &mockUserStore{}
	us.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	_, err := svc.Create(context.Background(), baseUser())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	us.AssertExpectations(t)
}

func TestCreate_PopulatesAllCacheSlots(t *testing.T) {
	us := &mockUserStore{}
	us.On("Create", mock.Anything, mock.Anything).Return(nil)

	cache := newRealCache(t)
	svc := NewService(ServiceDeps{Store: us, Cache: cache})

	u, err := svc.Create(context.Background(), baseUser())
	require.NoError(t, err)

	// Subsequent lookups are served from cache: the store mock has no
	// expectations for Get*, so a store hit would fail the test.
	got, err := svc.FindByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
	got, err = svc.FindByPhone(context.Background(), u.Phone)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
	us.AssertExpectations(t)
}

func TestCreate_CacheWriteFailureIsNonFatal(t *testing.T) {
	us := &mockUserStore{}
	us.On("Create", mock.Anything, mock.Anything).Return(nil)
	uc := &mockUserCache{}
	uc.On("Set", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	svc := NewService(ServiceDeps{Store: us, Cache: uc})
	u, err := svc.Create(context.Background(), baseUser())

	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	uc.AssertExpectations(t)
}

// --- Find tests ---

func TestFindByEmail_CacheAsideIdempotence(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(baseUser(), nil).Once()

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})

	// First call misses the cache and hits the store once.
	first, err := svc.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)

	// Second call is served from cache — Once() on the store enforces it.
	second, err := svc.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.Email, second.Email)
	assert.Equal(t, first.Version, second.Version)
	us.AssertExpectations(t)
}

func TestFindByEmail_NotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, domain.ErrNotFound)

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	_, err := svc.FindByEmail(context.Background(), "nobody@x.com")

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFind_CacheReadFailureFallsBackToStore(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(baseUser(), nil)
	uc := &mockUserCache{}
	uc.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, false, errors.New("redis down"))
	uc.On("Set", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	svc := NewService(ServiceDeps{Store: us, Cache: uc})
	u, err := svc.FindByEmail(context.Background(), "a@x.com")

	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
}

func TestFindByIdentifier_PhoneFallback(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "+1000").Return(nil, domain.ErrNotFound)
	us.On("GetByPhone", mock.Anything, "+1000").Return(baseUser(), nil)

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	u, err := svc.FindByIdentifier(context.Background(), "+1000")

	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	us.AssertExpectations(t)
}

// --- Update tests ---

func TestUpdate_NotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	_, err := svc.Update(context.Background(), "missing", map[string]interface{}{"verified": true})

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdate_RefreshesCache(t *testing.T) {
	old := baseUser()
	updated := baseUser()
	updated.Verified = true
	updated.Version = 2

	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(old, nil).Once()
	us.On("UpdateConditional", mock.Anything, "u1", int64(1), mock.Anything).Return(nil)
	us.On("Get", mock.Anything, "u1").Return(updated, nil).Once()

	cache := newRealCache(t)
	svc := NewService(ServiceDeps{Store: us, Cache: cache})

	u, err := svc.Update(context.Background(), "u1", map[string]interface{}{"verified": true})
	require.NoError(t, err)
	assert.True(t, u.Verified)

	// A read immediately after the update must see the new state without
	// touching the store again.
	got, err := svc.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, int64(2), got.Version)
	us.AssertExpectations(t)
}

func TestUpdate_RetriesOnVersionConflict(t *testing.T) {
	v1 := baseUser()
	v2 := baseUser()
	v2.Version = 2

	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(v1, nil).Once()
	us.On("UpdateConditional", mock.Anything, "u1", int64(1), mock.Anything).
		Return(dynamo.ErrVersionConflict).Once()
	us.On("Get", mock.Anything, "u1").Return(v2, nil).Once()
	us.On("UpdateConditional", mock.Anything, "u1", int64(2), mock.Anything).Return(nil).Once()
	us.On("Get", mock.Anything, "u1").Return(v2, nil).Once()

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	_, err := svc.Update(context.Background(), "u1", map[string]interface{}{"verified": true})

	require.NoError(t, err)
	us.AssertExpectations(t)
}

func TestUpdate_GivesUpAfterRepeatedConflicts(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(baseUser(), nil)
	us.On("UpdateConditional", mock.Anything, "u1", int64(1), mock.Anything).
		Return(dynamo.ErrVersionConflict)

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	_, err := svc.Update(context.Background(), "u1", map[string]interface{}{"verified": true})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

// --- CreateMany tests ---

func TestCreateMany_AllOrNothing(t *testing.T) {
	us := &mockUserStore{}
	us.On("CreateMany", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	_, err := svc.CreateMany(context.Background(), []*domain.User{baseUser()})

	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCreateMany_CachesEveryUser(t *testing.T) {
	u2 := baseUser()
	u2.UserID = "u2"
	u2.Email = "b@x.com"
	u2.Phone = "+2000"
	batch := []*domain.User{baseUser(), u2}

	us := &mockUserStore{}
	us.On("CreateMany", mock.Anything, batch).Return(nil)

	svc := NewService(ServiceDeps{Store: us, Cache: newRealCache(t)})
	out, err := svc.CreateMany(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out, 2)

	for _, u := range batch {
		got, err := svc.FindByEmail(context.Background(), u.Email)
		require.NoError(t, err)
		assert.Equal(t, u.UserID, got.UserID)
	}
	us.AssertExpectations(t)
}
