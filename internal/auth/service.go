package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/frostline-erp/frostline/internal/shared"
)

// cacheTTL bounds how long a verified key skips the bcrypt comparison.
// Disabling a key takes effect within this window at the latest.
const cacheTTL = 5 * time.Minute

type cachedActor struct {
	actor   shared.Actor
	keyID   int64
	expires time.Time
}

// Service verifies API keys and resolves them to actors.
type Service struct {
	logger *slog.Logger
	repo   Repository
	group  singleflight.Group
	cache  sync.Map // raw token -> cachedActor
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(logger *slog.Logger, repo Repository) *Service {
	return &Service{logger: logger, repo: repo, now: time.Now}
}

// Verify resolves a raw "<prefix>.<secret>" token to the actor it belongs to.
// bcrypt comparisons are deduplicated and cached so a busy client does not pay
// the hash cost on every request.
func (s *Service) Verify(ctx context.Context, token string) (shared.Actor, error) {
	token = strings.TrimSpace(token)
	prefix, secret, ok := strings.Cut(token, ".")
	if !ok || prefix == "" || secret == "" {
		return shared.Actor{}, ErrInvalidKey
	}

	if entry, found := s.cache.Load(token); found {
		cached := entry.(cachedActor)
		if s.now().Before(cached.expires) {
			return cached.actor, nil
		}
		s.cache.Delete(token)
	}

	result, err, _ := s.group.Do(token, func() (any, error) {
		return s.verify(ctx, token, prefix, secret)
	})
	if err != nil {
		return shared.Actor{}, err
	}
	return result.(shared.Actor), nil
}

func (s *Service) verify(ctx context.Context, token, prefix, secret string) (shared.Actor, error) {
	key, err := s.repo.FindByPrefix(ctx, prefix)
	if err != nil {
		return shared.Actor{}, err
	}
	if key.Disabled {
		return shared.Actor{}, ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return shared.Actor{}, ErrInvalidKey
	}
	actor := shared.Actor{
		Key:      key.Prefix,
		Name:     key.Name,
		Customer: key.Customer,
		Roles:    key.Roles,
	}
	s.cache.Store(token, cachedActor{actor: actor, keyID: key.ID, expires: s.now().Add(cacheTTL)})
	if err := s.repo.TouchLastUsed(ctx, key.ID, s.now()); err != nil {
		s.logger.Warn("touch api key", slog.String("prefix", key.Prefix), slog.Any("error", err))
	}
	return actor, nil
}

// HashSecret produces a bcrypt hash for storing a freshly generated key.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
