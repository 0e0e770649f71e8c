package service

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/tat"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

const maxIdempotencyKeyLength = 200

// IdempotencyDependencies groups idempotency collaborators.
type IdempotencyDependencies struct {
	Repo   repository.IdempotencyRepository
	TTL    time.Duration
	Clock  tat.Clock
	Logger *zap.Logger
}

// IdempotencyService makes externally retried mutations take effect once.
type IdempotencyService struct {
	repo   repository.IdempotencyRepository
	ttl    time.Duration
	clock  tat.Clock
	logger *zap.Logger
}

// IdempotentRequest identifies one client request.
type IdempotentRequest struct {
	Key          string
	Scope        string
	ResourceType string
	Fingerprint  string
}

// NewIdempotencyService constructs the service.
func NewIdempotencyService(deps IdempotencyDependencies) *IdempotencyService {
	clock := deps.Clock
	if clock == nil {
		clock = tat.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{repo: deps.Repo, ttl: ttl, clock: clock, logger: logger}
}

// Fingerprint hashes the parts of a request that must match on replay.
func Fingerprint(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		_, _ = h.Write(p)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Do runs fn at most once per (scope, key). A replay of a finished request
// returns the stored resource id with replayed set. Reusing a key for a
// different request, or while the first is still running, is a conflict.
func (s *IdempotencyService) Do(ctx context.Context, req IdempotentRequest, fn func(ctx context.Context) (string, error)) (resourceID string, replayed bool, err error) {
	key := strings.TrimSpace(req.Key)
	if key == "" {
		id, err := fn(ctx)
		return id, false, err
	}
	if len(key) > maxIdempotencyKeyLength {
		return "", false, apperrors.NewValidationError("idempotency key too long", map[string]any{"max_length": maxIdempotencyKeyLength})
	}
	stored := req.Scope + ":" + key
	now := s.clock.Now()

	record, reserved, err := s.repo.Reserve(ctx, domain.IdempotencyRecord{
		Key:          stored,
		ResourceType: req.ResourceType,
		RequestHash:  req.Fingerprint,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}, now)
	if err != nil {
		return "", false, err
	}
	if !reserved {
		if record.ResourceType != req.ResourceType || record.RequestHash != req.Fingerprint {
			return "", false, apperrors.NewConflict("idempotency key reused with a different request", map[string]any{"key": key})
		}
		if record.ResourceID == nil {
			return "", false, apperrors.NewConflict("request with this idempotency key is still in progress", map[string]any{"key": key})
		}
		return *record.ResourceID, true, nil
	}

	id, err := fn(ctx)
	if err != nil {
		if releaseErr := s.repo.Release(context.WithoutCancel(ctx), stored); releaseErr != nil {
			s.logger.Warn("release idempotency key", zap.String("key", stored), zap.Error(releaseErr))
		}
		return "", false, err
	}
	if err := s.repo.Complete(context.WithoutCancel(ctx), stored, id); err != nil {
		s.logger.Warn("complete idempotency key", zap.String("key", stored), zap.Error(err))
	}
	return id, false, nil
}

// PurgeExpired deletes records past their TTL.
func (s *IdempotencyService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpired(ctx, s.clock.Now())
}
