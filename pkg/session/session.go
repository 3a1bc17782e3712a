// Package session keeps issued captcha challenges until they are verified or
// expire.
//
// A [Challenge] never holds the plaintext answer, only a keyed digest of it
// (see package issuer). Records are short-lived and single-use: verification
// removes them with [Store.Take], whatever the outcome.
//
// Three backends implement [Store]:
//   - memory: in-process map, for a single server instance and tests
//   - file: one JSON file per challenge, for the CLI and small deployments
//   - redis: shared storage with native TTLs, for multi-instance deployments
//
// # Usage
//
//	// Single instance
//	store := session.NewMemoryStore()
//
//	// Multi-instance
//	store, err := session.DialRedis(ctx, session.RedisConfig{Addr: "localhost:6379"})
//
//	ch, err := session.New("captcha", digest, session.DefaultTTL)
//	if err != nil {
//	    return err
//	}
//	store.Set(ctx, ch)
//
//	// Later, exactly once
//	ch, err := store.Take(ctx, id)
//	if errors.Is(err, errors.ErrCodeNotFound) {
//	    // unknown, already used, or evicted
//	}
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

// Default values.
const (
	// DefaultTTL is how long an issued challenge stays answerable.
	DefaultTTL = 5 * time.Minute

	// DefaultName labels challenges issued without an explicit name.
	DefaultName = "captcha"
)

// Sentinel errors for store operations. Match them with errors.Is on the code.
var (
	// ErrNotFound is returned when a challenge does not exist or was already used.
	ErrNotFound = errors.New(errors.ErrCodeNotFound, "challenge not found")

	// ErrExpired is returned when a challenge exists but has exceeded its TTL.
	ErrExpired = errors.New(errors.ErrCodeExpired, "challenge expired")
)

// Challenge is one issued captcha awaiting an answer.
type Challenge struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Digest    []byte    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the challenge has expired.
func (c *Challenge) IsExpired() bool {
	return c.expiredAt(time.Now())
}

func (c *Challenge) expiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Store is the interface for challenge storage backends.
type Store interface {
	// Get retrieves a challenge without consuming it.
	// Returns ErrNotFound if the challenge doesn't exist and ErrExpired if it
	// exists but has expired.
	Get(ctx context.Context, id string) (*Challenge, error)

	// Take retrieves and removes a challenge atomically, so that concurrent
	// callers never both receive it. Errors as Get.
	Take(ctx context.Context, id string) (*Challenge, error)

	// Set stores a challenge. Challenges that have already expired are refused.
	Set(ctx context.Context, c *Challenge) error

	// Delete removes a challenge. Deleting a missing challenge is not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired challenges (may be a no-op when the backend
	// expires keys natively).
	Cleanup(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// GenerateID returns a new random challenge id.
func GenerateID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape GenerateID produces. Stores use it
// to reject ids that could escape their key space.
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}

// New creates a challenge with a fresh id that expires after ttl.
func New(name string, digest []byte, ttl time.Duration) (*Challenge, error) {
	if ttl <= 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "challenge ttl must be positive, got %v", ttl)
	}
	if name == "" {
		name = DefaultName
	}
	now := time.Now()
	return &Challenge{
		ID:        GenerateID(),
		Name:      name,
		Digest:    digest,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func checkSet(c *Challenge, now time.Time) error {
	if c == nil || !ValidID(c.ID) {
		return errors.New(errors.ErrCodeInvalidInput, "challenge has no valid id")
	}
	if c.expiredAt(now) {
		return errors.New(errors.ErrCodeInvalidInput, "challenge %s is already expired", c.ID)
	}
	return nil
}
