package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frostline-erp/frostline/internal/shared"
)

type fakeRepo struct {
	keys    map[string]*APIKey
	lookups int
}

func (f *fakeRepo) FindByPrefix(_ context.Context, prefix string) (*APIKey, error) {
	f.lookups++
	key, ok := f.keys[prefix]
	if !ok {
		return nil, ErrInvalidKey
	}
	copied := *key
	return &copied, nil
}

func (f *fakeRepo) TouchLastUsed(context.Context, int64, time.Time) error { return nil }

func newTestService(t *testing.T, keys ...*APIKey) (*Service, *fakeRepo) {
	t.Helper()
	repo := &fakeRepo{keys: map[string]*APIKey{}}
	for _, key := range keys {
		repo.keys[key.Prefix] = key
	}
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo), repo
}

func storedKey(t *testing.T, prefix, secret string) *APIKey {
	t.Helper()
	hash, err := HashSecret(secret)
	require.NoError(t, err)
	return &APIKey{
		ID:         1,
		Prefix:     prefix,
		SecretHash: hash,
		Name:       "Gate Office",
		Customer:   "Northfield Traders",
		Roles:      []string{"operator"},
	}
}

func TestVerifyResolvesActor(t *testing.T) {
	svc, _ := newTestService(t, storedKey(t, "flk_a1b2", "s3cr3t"))

	actor, err := svc.Verify(context.Background(), "flk_a1b2.s3cr3t")
	require.NoError(t, err)
	require.Equal(t, "Gate Office", actor.Name)
	require.Equal(t, "Northfield Traders", actor.Customer)
	require.True(t, actor.HasRole("operator"))
}

func TestVerifyRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t, storedKey(t, "flk_a1b2", "s3cr3t"))

	for _, token := range []string{"", "noseparator", "flk_a1b2.wrong", "flk_zzzz.s3cr3t"} {
		_, err := svc.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrInvalidKey, "token %q", token)
	}
}

func TestVerifyRejectsDisabledKey(t *testing.T) {
	key := storedKey(t, "flk_a1b2", "s3cr3t")
	key.Disabled = true
	svc, _ := newTestService(t, key)

	_, err := svc.Verify(context.Background(), "flk_a1b2.s3cr3t")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestVerifyCachesSuccessfulLookups(t *testing.T) {
	svc, repo := newTestService(t, storedKey(t, "flk_a1b2", "s3cr3t"))

	for i := 0; i < 3; i++ {
		_, err := svc.Verify(context.Background(), "flk_a1b2.s3cr3t")
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.lookups)

	svc.now = func() time.Time { return time.Now().Add(cacheTTL + time.Second) }
	_, err := svc.Verify(context.Background(), "flk_a1b2.s3cr3t")
	require.NoError(t, err)
	require.Equal(t, 2, repo.lookups)
}

func TestMiddlewareSetsActor(t *testing.T) {
	svc, _ := newTestService(t, storedKey(t, "flk_a1b2", "s3cr3t"))

	var seen shared.Actor
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer flk_a1b2.s3cr3t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "flk_a1b2", seen.Key)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.WithActor(req.Context(), shared.Actor{Key: "k", Roles: []string{"operator"}}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.WithActor(req.Context(), shared.Actor{Key: "k", Roles: []string{"admin"}}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
