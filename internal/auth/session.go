package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/config"
)

var errSigningKeyMissing = errors.New("session signing key is not configured")

// AttemptLimiter counts sign-in attempts per key inside a window.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenClaims is the JWT payload: the session claims plus registered claims.
type tokenClaims struct {
	ID                  string `json:"_id"`
	IsVerified          bool   `json:"isVerified"`
	IsAcceptingMessages bool   `json:"isAcceptingMessages"`
	Username            string `json:"username"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) session() *SessionClaims {
	return &SessionClaims{
		ID:                  c.ID,
		IsVerified:          c.IsVerified,
		IsAcceptingMessages: c.IsAcceptingMessages,
		Username:            c.Username,
	}
}

// SessionAuthority checks credentials and mints and resolves session tokens.
// Token resolution is local: it never reads the account store.
type SessionAuthority struct {
	config     *config.AuthConfig
	repository Repository
	hasher     Hasher
	limiter    AttemptLimiter
	metrics    *Metrics
	log        *zap.Logger
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewSessionAuthority(
	config *config.AuthConfig,
	repo Repository,
	hasher Hasher,
	limiter AttemptLimiter,
	metrics *Metrics,
	log *zap.Logger,
) *SessionAuthority {
	return &SessionAuthority{
		config:     config,
		repository: repo,
		hasher:     hasher,
		limiter:    limiter,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// Authenticate resolves identifier (username or email) and checks password.
// Unverified accounts are refused with ErrNotVerified before the password is compared.
func (s *SessionAuthority) Authenticate(ctx context.Context, identifier, password string) (*SessionClaims, error) {
	claims, err := s.authenticate(ctx, identifier, password)
	s.metrics.observeSignIn(err)
	return claims, err
}

func (s *SessionAuthority) authenticate(ctx context.Context, identifier, password string) (*SessionClaims, error) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "sign-in:"+strings.ToLower(identifier))
		if err != nil {
			s.log.Warn("sign-in limiter unavailable", zap.Error(err))
		} else if !allowed {
			return nil, ErrTooManyAttempts
		}
	}

	account, err := s.repository.GetAccountByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.burnCompare(password) // Prevent timing attacks
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if !account.IsVerified {
		return nil, ErrNotVerified
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, err
	}

	claims := account.Claims()
	return &claims, nil
}

func (s *SessionAuthority) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("dummy-password-for-timing")
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

// MintToken signs claims into an HS256 token valid for the configured lifetime.
func (s *SessionAuthority) MintToken(claims SessionClaims) (string, time.Time, error) {
	if s.config.JWTSecret == "" {
		return "", time.Time{}, errSigningKeyMissing
	}

	now := s.now()
	expiresAt := now.Add(s.config.TokenExpiration)
	tc := &tokenClaims{
		ID:                  claims.ID,
		IsVerified:          claims.IsVerified,
		IsAcceptingMessages: claims.IsAcceptingMessages,
		Username:            claims.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// ResolveToken returns the claims embedded in token. Missing, malformed,
// tampered and expired tokens all yield ErrUnauthenticated; any other error
// is a fault on our side.
func (s *SessionAuthority) ResolveToken(token string) (*SessionClaims, error) {
	if s.config.JWTSecret == "" {
		return nil, errSigningKeyMissing
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}

	tc := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, tc,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(s.config.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !parsed.Valid || tc.ID == "" || tc.ID != tc.Subject {
		return nil, ErrUnauthenticated
	}

	return tc.session(), nil
}

// RefreshToken re-mints token from its own embedded claims with a new expiry.
func (s *SessionAuthority) RefreshToken(token string) (string, time.Time, *SessionClaims, error) {
	claims, err := s.ResolveToken(token)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if !s.config.RefreshTokenEnabled {
		return "", time.Time{}, claims, errors.New("token refresh is disabled")
	}

	refreshed, expiresAt, err := s.MintToken(*claims)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return refreshed, expiresAt, claims, nil
}
