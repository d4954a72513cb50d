package auth

import (
	"errors"
	"time"
)

// APIKey is a stored credential. The raw key is "<prefix>.<secret>"; only a
// bcrypt hash of the secret is persisted.
type APIKey struct {
	ID         int64
	Prefix     string
	SecretHash string
	Name       string
	Customer   string
	Roles      []string
	Disabled   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// ErrInvalidKey covers unknown, malformed, disabled and mismatched keys. It is
// deliberately a single sentinel so responses never reveal which check failed.
var ErrInvalidKey = errors.New("invalid API key")
