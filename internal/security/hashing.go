package security

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrEncoding is returned when a plaintext password is not valid UTF-8.
	ErrEncoding = errors.New("password is not valid UTF-8")
	// ErrMalformedHash is returned when a stored value is not a bcrypt encoding.
	ErrMalformedHash = errors.New("malformed password hash")
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
	sem  *semaphore.Weighted
}

// NewHasher returns a Hasher with the given bcrypt cost (4-31). concurrency bounds the
// number of hash/verify operations running at once; 0 means GOMAXPROCS.
func NewHasher(cost, concurrency int) *Hasher {
	if cost <= 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Hasher{Cost: cost, sem: semaphore.NewWeighted(int64(concurrency))}
}

// Hash produces a bcrypt hash of plaintext with a fresh random salt. Two calls on the
// same input return different hashes.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if !utf8.ValidString(plaintext) {
		return "", ErrEncoding
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hash. A mismatch is (false, nil); a hash
// that is not a bcrypt encoding yields ErrMalformedHash.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	if !utf8.ValidString(plaintext) {
		return false, ErrEncoding
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrMalformedHash, err)
	}
}

// IsHash reports whether s looks like a bcrypt encoding. Used by offline tooling to
// find rows that still hold plaintext.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
