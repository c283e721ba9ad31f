package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var errUnknown = errors.New("unknown error")

type MockBackend struct {
	mock.Mock
}

func (b *MockBackend) Init(ctx context.Context) error {
	args := b.Called(ctx)
	return args.Error(0)
}

func (b *MockBackend) GetTargetURL(ctx context.Context, shortID string) (string, bool, error) {
	args := b.Called(ctx, shortID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (b *MockBackend) CreateShortLink(ctx context.Context, shortID, targetURL string) error {
	args := b.Called(ctx, shortID, targetURL)
	return args.Error(0)
}

func (b *MockBackend) CheckShortIDsExist(ctx context.Context, shortIDs []string) ([]string, error) {
	args := b.Called(ctx, shortIDs)

	// Allows tests to answer based on the generated candidates, e.g. to
	// simulate a fully saturated namespace by echoing the batch back.
	if fn, ok := args.Get(0).(func([]string) []string); ok {
		return fn(shortIDs), args.Error(1)
	}

	existing, _ := args.Get(0).([]string)
	return existing, args.Error(1)
}

func (b *MockBackend) UpdateLastAccessTime(ctx context.Context, shortID string) error {
	args := b.Called(ctx, shortID)
	return args.Error(0)
}

func (b *MockBackend) CleanUnusedLinks(ctx context.Context, maxAgeDays int) ([]string, error) {
	args := b.Called(ctx, maxAgeDays)
	deleted, _ := args.Get(0).([]string)
	return deleted, args.Error(1)
}

// fakeCache is an in-memory cache tier that records its interactions.
type fakeCache struct {
	entries   map[string]string
	initCalls int
	getErr    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Init(ctx context.Context) error {
	c.initCalls++
	return nil
}

func (c *fakeCache) Get(ctx context.Context, shortID string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}

	targetURL, ok := c.entries[shortID]
	return targetURL, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, shortID, targetURL string) error {
	c.entries[shortID] = targetURL
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, shortID string) error {
	delete(c.entries, shortID)
	return nil
}

func setupService(t testing.TB, backend *MockBackend, opts ...Option) *LinkService {
	t.Helper()

	backend.On("Init", mock.Anything).Once().Return(nil)

	svc, err := New(context.Background(), backend, opts...)
	if err != nil {
		t.Fatal(err)
	}

	return svc
}

func echoAll(shortIDs []string) []string {
	return shortIDs
}

func TestNew(t *testing.T) {
	t.Run("backend init error", func(t *testing.T) {
		backend := new(MockBackend)
		backend.On("Init", mock.Anything).Once().Return(errUnknown)

		svc, err := New(context.Background(), backend)

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, svc)
		backend.AssertExpectations(t)
	})
}

func TestLinkService_CreateShortLink(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend, WithShortIDLength(7))

		backend.On("CheckShortIDsExist", mock.Anything, mock.Anything).
			Once().
			Return([]string(nil), nil)
		backend.On("CreateShortLink", mock.Anything, mock.Anything, "https://example.com").
			Once().
			Return(nil)

		shortID, err := svc.CreateShortLink(context.Background(), "https://example.com")

		assert.NoError(t, err)
		assert.Len(t, shortID, 7)
		assert.Equal(t, 7, svc.ShortIDLength())
		backend.AssertExpectations(t)
	})

	t.Run("skips taken candidates", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend, WithShortIDLength(7))

		// The first two candidates of the batch collide, the third is free.
		backend.On("CheckShortIDsExist", mock.Anything, mock.Anything).
			Once().
			Return(func(shortIDs []string) []string { return shortIDs[:2] }, nil)

		var createdID string
		backend.On("CreateShortLink", mock.Anything, mock.Anything, "https://example.com").
			Once().
			Run(func(args mock.Arguments) {
				createdID = args.String(1)
			}).
			Return(nil)

		shortID, err := svc.CreateShortLink(context.Background(), "https://example.com")

		assert.NoError(t, err)
		assert.Equal(t, createdID, shortID)
		backend.AssertExpectations(t)
	})

	t.Run("escalates length when namespace saturated", func(t *testing.T) {
		backend := new(MockBackend)

		var escalations []int
		svc := setupService(t, backend,
			WithShortIDLength(2),
			WithOnShortIDLengthUpdate(func(newLength int) {
				escalations = append(escalations, newLength)
			}),
		)

		// Every candidate of the first batch exists, the second batch is free.
		backend.On("CheckShortIDsExist", mock.Anything, mock.Anything).
			Once().
			Return(echoAll, nil)
		backend.On("CheckShortIDsExist", mock.Anything, mock.Anything).
			Once().
			Return([]string(nil), nil)
		backend.On("CreateShortLink", mock.Anything, mock.Anything, "https://example.com").
			Once().
			Return(nil)

		shortID, err := svc.CreateShortLink(context.Background(), "https://example.com")

		assert.NoError(t, err)
		assert.Len(t, shortID, 3)
		assert.Equal(t, []int{3}, escalations)
		assert.Equal(t, 3, svc.ShortIDLength())
		backend.AssertExpectations(t)
	})

	t.Run("id space exhausted", func(t *testing.T) {
		backend := new(MockBackend)

		var escalations []int
		svc := setupService(t, backend,
			WithShortIDLength(2),
			WithCreateAttempts(3),
			WithOnShortIDLengthUpdate(func(newLength int) {
				escalations = append(escalations, newLength)
			}),
		)

		backend.On("CheckShortIDsExist", mock.Anything, mock.Anything).
			Times(3).
			Return(echoAll, nil)

		shortID, err := svc.CreateShortLink(context.Background(), "https://example.com")

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrIDSpaceExhausted)
		assert.Empty(t, shortID)
		assert.Equal(t, []int{3, 4, 5}, escalations)
		backend.AssertNotCalled(t, "CreateShortLink", mock.Anything, mock.Anything, mock.Anything)
		backend.AssertExpectations(t)
	})

	t.Run("writes through to every cache tier", func(t *testing.T) {
		backend := new(MockBackend)
		tier1, tier2 := newFakeCache(), newFakeCache()
		svc := setupService(t, backend, WithCaches(tier1, tier2))

		backend.On("CheckShortIDsExist", mock.Anything, mock.Anything).
			Once().
			Return([]string(nil), nil)
		backend.On("CreateShortLink", mock.Anything, mock.Anything, "https://example.com").
			Once().
			Return(nil)

		shortID, err := svc.CreateShortLink(context.Background(), "https://example.com")

		assert.NoError(t, err)
		assert.Equal(t, "https://example.com", tier1.entries[shortID])
		assert.Equal(t, "https://example.com", tier2.entries[shortID])
		backend.AssertExpectations(t)
	})

	t.Run("backend create error", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend)

		backend.On("CheckShortIDsExist", mock.Anything, mock.Anything).
			Once().
			Return([]string(nil), nil)
		backend.On("CreateShortLink", mock.Anything, mock.Anything, "https://example.com").
			Once().
			Return(errUnknown)

		shortID, err := svc.CreateShortLink(context.Background(), "https://example.com")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Empty(t, shortID)
		backend.AssertExpectations(t)
	})
}

func TestLinkService_GetTargetURL(t *testing.T) {
	t.Run("cache hit short-circuits backend read", func(t *testing.T) {
		backend := new(MockBackend)
		tier1, tier2 := newFakeCache(), newFakeCache()
		tier1.entries["abc1234"] = "https://example.com"
		svc := setupService(t, backend, WithCaches(tier1, tier2))

		backend.On("UpdateLastAccessTime", mock.Anything, "abc1234").Once().Return(nil)

		targetURL, ok, err := svc.GetTargetURL(context.Background(), "abc1234")

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "https://example.com", targetURL)
		backend.AssertNotCalled(t, "GetTargetURL", mock.Anything, mock.Anything)

		// A hit still converges every tier, including the ones that missed.
		assert.Equal(t, "https://example.com", tier2.entries["abc1234"])
		backend.AssertExpectations(t)
	})

	t.Run("cache miss falls back to backend and populates tiers", func(t *testing.T) {
		backend := new(MockBackend)
		tier1, tier2 := newFakeCache(), newFakeCache()
		svc := setupService(t, backend, WithCaches(tier1, tier2))

		backend.On("GetTargetURL", mock.Anything, "abc1234").
			Once().
			Return("https://example.com", true, nil)
		backend.On("UpdateLastAccessTime", mock.Anything, "abc1234").Once().Return(nil)

		targetURL, ok, err := svc.GetTargetURL(context.Background(), "abc1234")

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "https://example.com", targetURL)
		assert.Equal(t, "https://example.com", tier1.entries["abc1234"])
		assert.Equal(t, "https://example.com", tier2.entries["abc1234"])
		backend.AssertExpectations(t)
	})

	t.Run("absence is not cached and not an error", func(t *testing.T) {
		backend := new(MockBackend)
		tier := newFakeCache()
		svc := setupService(t, backend, WithCaches(tier))

		backend.On("GetTargetURL", mock.Anything, "missing").
			Once().
			Return("", false, nil)

		targetURL, ok, err := svc.GetTargetURL(context.Background(), "missing")

		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, targetURL)
		assert.Empty(t, tier.entries)
		backend.AssertNotCalled(t, "UpdateLastAccessTime", mock.Anything, mock.Anything)
		backend.AssertExpectations(t)
	})

	t.Run("bumps last access time on every hit", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend)

		backend.On("GetTargetURL", mock.Anything, "abc1234").
			Times(2).
			Return("https://example.com", true, nil)
		backend.On("UpdateLastAccessTime", mock.Anything, "abc1234").Times(2).Return(nil)

		for i := 0; i < 2; i++ {
			_, _, err := svc.GetTargetURL(context.Background(), "abc1234")
			assert.NoError(t, err)
		}

		backend.AssertExpectations(t)
	})

	t.Run("last access update disabled", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend, WithUpdateLastAccessOnGet(false))

		backend.On("GetTargetURL", mock.Anything, "abc1234").
			Once().
			Return("https://example.com", true, nil)

		targetURL, ok, err := svc.GetTargetURL(context.Background(), "abc1234")

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "https://example.com", targetURL)
		backend.AssertNotCalled(t, "UpdateLastAccessTime", mock.Anything, mock.Anything)
		backend.AssertExpectations(t)
	})

	t.Run("cache fault propagates", func(t *testing.T) {
		backend := new(MockBackend)
		tier := newFakeCache()
		tier.getErr = errUnknown
		svc := setupService(t, backend, WithCaches(tier))

		targetURL, ok, err := svc.GetTargetURL(context.Background(), "abc1234")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.False(t, ok)
		assert.Empty(t, targetURL)
		backend.AssertExpectations(t)
	})

	t.Run("initializes cache tiers lazily and once", func(t *testing.T) {
		backend := new(MockBackend)
		tier := newFakeCache()
		svc := setupService(t, backend, WithCaches(tier))
		assert.Zero(t, tier.initCalls)

		backend.On("GetTargetURL", mock.Anything, "missing").
			Times(2).
			Return("", false, nil)

		for i := 0; i < 2; i++ {
			_, _, err := svc.GetTargetURL(context.Background(), "missing")
			assert.NoError(t, err)
		}

		assert.Equal(t, 1, tier.initCalls)
		backend.AssertExpectations(t)
	})
}

func TestLinkService_UpdateLastAccessTime(t *testing.T) {
	t.Run("delegates to backend", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend)

		backend.On("UpdateLastAccessTime", mock.Anything, "abc1234").Once().Return(nil)

		err := svc.UpdateLastAccessTime(context.Background(), "abc1234")

		assert.NoError(t, err)
		backend.AssertExpectations(t)
	})

	t.Run("backend error", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend)

		backend.On("UpdateLastAccessTime", mock.Anything, "abc1234").Once().Return(errUnknown)

		err := svc.UpdateLastAccessTime(context.Background(), "abc1234")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		backend.AssertExpectations(t)
	})
}

func TestLinkService_CleanUnusedLinks(t *testing.T) {
	t.Run("invalidates cache entries for pruned links", func(t *testing.T) {
		backend := new(MockBackend)
		tier := newFakeCache()
		tier.entries["old1"] = "https://old1.example.com"
		tier.entries["old2"] = "https://old2.example.com"
		tier.entries["live"] = "https://live.example.com"
		svc := setupService(t, backend, WithCaches(tier))

		backend.On("CleanUnusedLinks", mock.Anything, 30).
			Once().
			Return([]string{"old1", "old2"}, nil)

		deleted, err := svc.CleanUnusedLinks(context.Background(), 30)

		assert.NoError(t, err)
		assert.Equal(t, []string{"old1", "old2"}, deleted)
		assert.Equal(t, map[string]string{"live": "https://live.example.com"}, tier.entries)
		backend.AssertExpectations(t)
	})

	t.Run("backend error", func(t *testing.T) {
		backend := new(MockBackend)
		svc := setupService(t, backend)

		backend.On("CleanUnusedLinks", mock.Anything, 30).
			Once().
			Return(nil, errUnknown)

		deleted, err := svc.CleanUnusedLinks(context.Background(), 30)

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, deleted)
		backend.AssertExpectations(t)
	})
}
