package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline-erp/frostline/internal/auth"
)

// KeyMinter creates API keys for warehouse clients.
type KeyMinter struct {
	pool *pgxpool.Pool
}

// NewKeyMinter constructs a new helper instance.
func NewKeyMinter(pool *pgxpool.Pool) *KeyMinter {
	return &KeyMinter{pool: pool}
}

// Create mints a key for the given client and prints the raw token once. The
// secret is only stored hashed; losing the printed value means minting a new key.
func (c *KeyMinter) Create(ctx context.Context, name, customer string, roles []string) (string, error) {
	prefix := "flk_" + randomHex(4)
	secret := randomHex(24)
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return "", err
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO api_keys (prefix, secret_hash, name, customer, roles, disabled, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, FALSE, NOW())`,
		prefix, hash, name, customer, roles)
	if err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	return prefix + "." + secret, nil
}

// ParseRoles splits a comma separated role list, dropping empty entries.
func ParseRoles(raw string) []string {
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
