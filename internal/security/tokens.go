package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, tampered with, or signed
	// with another secret.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a well-formed token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrNoSecret is returned by NewTokenProvider when the signing secret is empty.
	ErrNoSecret = errors.New("token signing secret is empty")
)

// DefaultTTL is the fixed lifetime of a session artifact.
const DefaultTTL = 30 * time.Minute

// Claims holds the JWT claims of a session artifact.
type Claims struct {
	jwt.RegisteredClaims
	UID      int64  `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Artifact is an issued session token and its validity window.
type Artifact struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenProvider issues and validates HS256 session tokens. It holds no per-session
// state; a token stays valid until exp.
type TokenProvider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a TokenProvider.
type Option func(*TokenProvider)

// WithClock overrides the time source for issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(p *TokenProvider) { p.now = now }
}

// NewTokenProvider returns a TokenProvider that signs with secret. A non-positive ttl
// falls back to DefaultTTL.
func NewTokenProvider(secret []byte, issuer string, ttl time.Duration, opts ...Option) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	p := &TokenProvider{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(p.now),
	)
	return p, nil
}

// TTL returns the artifact lifetime.
func (p *TokenProvider) TTL() time.Duration { return p.ttl }

// Issue signs a token for the given user. The output depends only on the inputs and
// the current second.
func (p *TokenProvider) Issue(uid int64, username, role string) (Artifact, error) {
	now := p.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(uid, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:      uid,
		Username: username,
		Role:     role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Token: token, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Validate parses tokenString and checks signature, algorithm, issuer and expiry.
// Returns ErrTokenExpired when now >= exp and ErrInvalidToken for every other failure.
func (p *TokenProvider) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	token, err := p.parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UID <= 0 || claims.Username == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
