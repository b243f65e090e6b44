package security

import "time"

// testSecret signs tokens in unit tests only. Do not use in production.
const testSecret = "test-only-hs256-secret"

// NewTestTokenProvider returns a TokenProvider using the test secret and issuer
// "test-issuer". For unit tests only. Callers must not use in production.
func NewTestTokenProvider(opts ...Option) (*TokenProvider, error) {
	return NewTokenProvider([]byte(testSecret), "test-issuer", 30*time.Minute, opts...)
}
