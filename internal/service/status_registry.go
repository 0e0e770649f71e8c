package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/repository"
)

const defaultStatusCacheKey = "ticket-sla:statuses:v1"

// StatusRegistryDependencies groups registry collaborators. Redis is optional.
type StatusRegistryDependencies struct {
	Repo          repository.StatusRepository
	Redis         *redis.Client
	CacheKey      string
	TTL           time.Duration
	PauseStatuses []string
	Logger        *zap.Logger
}

// StatusRegistry serves the ticket_statuses table through a short-lived
// in-process copy backed by Redis.
type StatusRegistry struct {
	repo          repository.StatusRepository
	redis         *redis.Client
	cacheKey      string
	ttl           time.Duration
	pauseFallback map[string]bool
	logger        *zap.Logger

	mu       sync.RWMutex
	statuses []domain.TicketStatus
	index    map[string]domain.TicketStatus
	expires  time.Time
}

// NewStatusRegistry constructs the registry.
func NewStatusRegistry(deps StatusRegistryDependencies) *StatusRegistry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	cacheKey := deps.CacheKey
	if cacheKey == "" {
		cacheKey = defaultStatusCacheKey
	}
	fallback := make(map[string]bool, len(deps.PauseStatuses))
	for _, s := range deps.PauseStatuses {
		fallback[s] = true
	}
	return &StatusRegistry{
		repo:          deps.Repo,
		redis:         deps.Redis,
		cacheKey:      cacheKey,
		ttl:           ttl,
		pauseFallback: fallback,
		logger:        logger,
	}
}

// List returns every status ordered by sort order.
func (r *StatusRegistry) List(ctx context.Context) ([]domain.TicketStatus, error) {
	r.mu.RLock()
	if r.index != nil && time.Now().Before(r.expires) {
		out := append([]domain.TicketStatus(nil), r.statuses...)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	statuses, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.store(statuses)
	return append([]domain.TicketStatus(nil), statuses...), nil
}

func (r *StatusRegistry) load(ctx context.Context) ([]domain.TicketStatus, error) {
	if r.redis != nil {
		raw, err := r.redis.Get(ctx, r.cacheKey).Bytes()
		switch {
		case err == nil:
			var cached []domain.TicketStatus
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil && len(cached) > 0 {
				return cached, nil
			}
		case !errors.Is(err, redis.Nil):
			r.logger.Warn("status cache read failed", zap.Error(err))
		}
	}

	statuses, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if r.redis != nil {
		if raw, err := json.Marshal(statuses); err == nil {
			if err := r.redis.Set(ctx, r.cacheKey, raw, r.ttl).Err(); err != nil {
				r.logger.Warn("status cache write failed", zap.Error(err))
			}
		}
	}
	return statuses, nil
}

func (r *StatusRegistry) store(statuses []domain.TicketStatus) {
	index := make(map[string]domain.TicketStatus, len(statuses))
	for _, s := range statuses {
		index[s.Value] = s
	}
	r.mu.Lock()
	r.statuses = statuses
	r.index = index
	r.expires = time.Now().Add(r.ttl)
	r.mu.Unlock()
}

// Invalidate drops both cache layers.
func (r *StatusRegistry) Invalidate(ctx context.Context) {
	r.mu.Lock()
	r.index = nil
	r.statuses = nil
	r.mu.Unlock()
	if r.redis != nil {
		if err := r.redis.Del(ctx, r.cacheKey).Err(); err != nil {
			r.logger.Warn("status cache invalidate failed", zap.Error(err))
		}
	}
}

// Lookup returns the registry entry for value.
func (r *StatusRegistry) Lookup(ctx context.Context, value string) (domain.TicketStatus, bool) {
	if _, err := r.List(ctx); err != nil {
		r.logger.Warn("status registry unavailable", zap.String("status", value), zap.Error(err))
		return domain.TicketStatus{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.index[value]
	return status, ok
}

// IsFinal fails closed: unknown values are treated as non-final.
func (r *StatusRegistry) IsFinal(ctx context.Context, value string) bool {
	status, ok := r.Lookup(ctx, value)
	if !ok {
		r.logger.Warn("unknown ticket status", zap.String("status", value))
		return false
	}
	return status.IsFinal
}

// Progress fails closed: unknown values report 0.
func (r *StatusRegistry) Progress(ctx context.Context, value string) int {
	status, ok := r.Lookup(ctx, value)
	if !ok {
		r.logger.Warn("unknown ticket status", zap.String("status", value))
		return 0
	}
	return status.Progress
}

// PausingStatuses returns the set of statuses that freeze the TAT countdown.
// The configured list stands in when the registry cannot be read.
func (r *StatusRegistry) PausingStatuses(ctx context.Context) map[string]bool {
	statuses, err := r.List(ctx)
	if err != nil {
		r.logger.Warn("status registry unavailable; using configured pause statuses", zap.Error(err))
		return r.pauseFallback
	}
	out := map[string]bool{}
	for _, s := range statuses {
		if s.PausesTAT {
			out[s.Value] = true
		}
	}
	return out
}
