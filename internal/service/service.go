package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vadimbarashkov/shortlink/internal/idgen"
)

// ErrIDSpaceExhausted is returned when no free short identifier could be
// secured within the configured attempt bound. Retrying beyond the bound is a
// caller policy decision, typically after a manual length bump.
var ErrIDSpaceExhausted = errors.New("short id space exhausted")

const (
	// candidateBatchSize is how many candidate identifiers are checked
	// against the backend per attempt. Batching amortizes round-trips
	// against the birthday-paradox collision rate.
	candidateBatchSize = 50

	defaultShortIDLength  = 7
	defaultCreateAttempts = 3
)

// Backend defines the durable store contract consumed by the service.
// Absence is modeled as a boolean or a missing list entry, never as an error.
type Backend interface {
	// Init performs one-time setup. It is invoked once when the service
	// is constructed.
	Init(ctx context.Context) error

	// GetTargetURL resolves a short identifier to its target URL.
	GetTargetURL(ctx context.Context, shortID string) (string, bool, error)

	// CreateShortLink inserts a new mapping. It must fail fast on a
	// uniqueness conflict rather than overwrite.
	CreateShortLink(ctx context.Context, shortID, targetURL string) error

	// CheckShortIDsExist returns the subset of the given identifiers that
	// already exist.
	CheckShortIDsExist(ctx context.Context, shortIDs []string) ([]string, error)

	// UpdateLastAccessTime bumps the last access timestamp for a link.
	UpdateLastAccessTime(ctx context.Context, shortID string) error

	// CleanUnusedLinks deletes links not accessed within maxAgeDays days
	// and returns the deleted identifiers.
	CleanUnusedLinks(ctx context.Context, maxAgeDays int) ([]string, error)
}

// Cache defines a single cache tier. Tiers are consulted in registration
// order and each implementation owns its eviction policy.
type Cache interface {
	// Init performs one-time setup. The service invokes it lazily before
	// the tier is first used.
	Init(ctx context.Context) error

	Get(ctx context.Context, shortID string) (string, bool, error)
	Set(ctx context.Context, shortID, targetURL string) error
	Delete(ctx context.Context, shortID string) error
}

// cacheTier pairs a Cache with its lazy init state. A failed Init is retried
// on the next use.
type cacheTier struct {
	cache Cache

	mu          sync.Mutex
	initialized bool
}

func (t *cacheTier) init(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return nil
	}

	if err := t.cache.Init(ctx); err != nil {
		return err
	}

	t.initialized = true
	return nil
}

// LinkService orchestrates collision-free short link creation against the
// backend and the layered cache-aside read path across zero or more cache
// tiers.
type LinkService struct {
	backend Backend
	tiers   []*cacheTier
	logger  *slog.Logger

	mu            sync.Mutex
	shortIDLength int

	createAttempts        int
	updateLastAccessOnGet bool
	onShortIDLengthUpdate func(newLength int)
}

type Option func(*LinkService)

// WithCaches registers the cache tiers consulted on reads, in order. The
// first tier should be the fastest.
func WithCaches(caches ...Cache) Option {
	return func(s *LinkService) {
		for _, c := range caches {
			s.tiers = append(s.tiers, &cacheTier{cache: c})
		}
	}
}

// WithShortIDLength sets the initial identifier length. The length only grows
// from there as the namespace saturates.
func WithShortIDLength(length int) Option {
	return func(s *LinkService) {
		s.shortIDLength = length
	}
}

// WithCreateAttempts sets how many candidate batches CreateShortLink tries,
// escalating the identifier length between batches, before giving up with
// ErrIDSpaceExhausted.
func WithCreateAttempts(attempts int) Option {
	return func(s *LinkService) {
		s.createAttempts = attempts
	}
}

// WithOnShortIDLengthUpdate registers a callback fired whenever the identifier
// length escalates. The caller is responsible for persisting the new length
// durably, using a set-if-greater policy so racing escalations cannot shrink
// the stored value.
func WithOnShortIDLengthUpdate(fn func(newLength int)) Option {
	return func(s *LinkService) {
		s.onShortIDLengthUpdate = fn
	}
}

// WithUpdateLastAccessOnGet controls whether successful lookups bump the
// link's last access timestamp. Enabled by default.
func WithUpdateLastAccessOnGet(update bool) Option {
	return func(s *LinkService) {
		s.updateLastAccessOnGet = update
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *LinkService) {
		s.logger = logger
	}
}

// New constructs a LinkService and runs the backend's one-time setup.
func New(ctx context.Context, backend Backend, opts ...Option) (*LinkService, error) {
	const op = "service.New"

	s := &LinkService{
		backend:               backend,
		logger:                slog.Default(),
		shortIDLength:         defaultShortIDLength,
		createAttempts:        defaultCreateAttempts,
		updateLastAccessOnGet: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := backend.Init(ctx); err != nil {
		return nil, fmt.Errorf("%s: failed to initialize backend: %w", op, err)
	}

	return s, nil
}

// ShortIDLength returns the current identifier length.
func (s *LinkService) ShortIDLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shortIDLength
}

// escalate grows the shared identifier length to at least newLength and
// notifies the registered callback. Racing callers may both escalate; the
// shared counter only ever grows, so the redundancy is harmless.
func (s *LinkService) escalate(newLength int) {
	s.mu.Lock()
	if newLength > s.shortIDLength {
		s.shortIDLength = newLength
	}
	s.mu.Unlock()

	if s.onShortIDLengthUpdate != nil {
		s.onShortIDLengthUpdate(newLength)
	}
}

// CreateShortLink generates a collision-free short identifier for targetURL,
// persists the mapping and writes it through to every cache tier.
//
// Each attempt checks a batch of candidates against the backend in one round
// trip and picks the first free one in generation order. A fully taken batch
// means the namespace at the current length is saturated, so the length is
// escalated before the next attempt. When all attempts are exhausted the call
// fails with ErrIDSpaceExhausted.
func (s *LinkService) CreateShortLink(ctx context.Context, targetURL string) (string, error) {
	const op = "service.LinkService.CreateShortLink"

	s.mu.Lock()
	length := s.shortIDLength
	s.mu.Unlock()

	var shortID string

	for attempt := 0; attempt < s.createAttempts; attempt++ {
		candidates, err := idgen.UniqueIDs(candidateBatchSize, length)
		if err != nil {
			return "", fmt.Errorf("%s: failed to generate candidates: %w", op, err)
		}

		existing, err := s.backend.CheckShortIDsExist(ctx, candidates)
		if err != nil {
			return "", fmt.Errorf("%s: failed to check candidates: %w", op, err)
		}

		taken := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			taken[id] = struct{}{}
		}

		for _, id := range candidates {
			if _, ok := taken[id]; !ok {
				shortID = id
				break
			}
		}

		if shortID != "" {
			break
		}

		length++
		s.escalate(length)
	}

	if shortID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrIDSpaceExhausted)
	}

	if err := s.backend.CreateShortLink(ctx, shortID, targetURL); err != nil {
		return "", fmt.Errorf("%s: failed to create short link: %w", op, err)
	}

	for _, tier := range s.tiers {
		if err := tier.init(ctx); err != nil {
			return "", fmt.Errorf("%s: failed to initialize cache: %w", op, err)
		}

		if err := tier.cache.Set(ctx, shortID, targetURL); err != nil {
			return "", fmt.Errorf("%s: failed to populate cache: %w", op, err)
		}
	}

	return shortID, nil
}

// GetTargetURL resolves a short identifier through the cache tiers with a
// backend fallback. Tiers are consulted sequentially and the first hit wins.
// A hit from any source is written back to every tier so they converge;
// absence is never cached, so a link created after a miss is visible on the
// very next lookup. Absence is a normal result, not an error.
func (s *LinkService) GetTargetURL(ctx context.Context, shortID string) (string, bool, error) {
	const op = "service.LinkService.GetTargetURL"

	var (
		targetURL string
		found     bool
	)

	for _, tier := range s.tiers {
		if err := tier.init(ctx); err != nil {
			return "", false, fmt.Errorf("%s: failed to initialize cache: %w", op, err)
		}

		url, ok, err := tier.cache.Get(ctx, shortID)
		if err != nil {
			return "", false, fmt.Errorf("%s: failed to get from cache: %w", op, err)
		}

		if ok {
			targetURL, found = url, true
			break
		}
	}

	if !found {
		url, ok, err := s.backend.GetTargetURL(ctx, shortID)
		if err != nil {
			return "", false, fmt.Errorf("%s: failed to get from backend: %w", op, err)
		}

		if !ok {
			return "", false, nil
		}

		targetURL, found = url, true
	}

	if s.updateLastAccessOnGet {
		if err := s.backend.UpdateLastAccessTime(ctx, shortID); err != nil {
			return "", false, fmt.Errorf("%s: failed to update last access time: %w", op, err)
		}
	}

	for _, tier := range s.tiers {
		if err := tier.init(ctx); err != nil {
			return "", false, fmt.Errorf("%s: failed to initialize cache: %w", op, err)
		}

		if err := tier.cache.Set(ctx, shortID, targetURL); err != nil {
			return "", false, fmt.Errorf("%s: failed to populate cache: %w", op, err)
		}
	}

	return targetURL, true, nil
}

// UpdateLastAccessTime keeps a link alive without a full read.
func (s *LinkService) UpdateLastAccessTime(ctx context.Context, shortID string) error {
	const op = "service.LinkService.UpdateLastAccessTime"

	if err := s.backend.UpdateLastAccessTime(ctx, shortID); err != nil {
		return fmt.Errorf("%s: failed to update last access time: %w", op, err)
	}

	return nil
}

// CleanUnusedLinks deletes links not accessed within maxAgeDays days and
// issues best-effort cache deletes for the pruned identifiers. Cache delete
// failures are logged, not propagated; a stale entry ages out through the
// tier's own expiry.
func (s *LinkService) CleanUnusedLinks(ctx context.Context, maxAgeDays int) ([]string, error) {
	const op = "service.LinkService.CleanUnusedLinks"

	deleted, err := s.backend.CleanUnusedLinks(ctx, maxAgeDays)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to clean unused links: %w", op, err)
	}

	for _, tier := range s.tiers {
		if err := tier.init(ctx); err != nil {
			s.logger.Warn(
				"skipping cache invalidation for pruned links",
				slog.Group(op, slog.Any("err", err)),
			)
			continue
		}

		for _, shortID := range deleted {
			if err := tier.cache.Delete(ctx, shortID); err != nil {
				s.logger.Warn(
					"failed to invalidate cache entry for pruned link",
					slog.Group(op, slog.String("short_id", shortID), slog.Any("err", err)),
				)
			}
		}
	}

	return deleted, nil
}
