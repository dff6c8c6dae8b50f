package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/elskow/mystery-message/internal/config"
	"github.com/elskow/mystery-message/internal/notify"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

func newTestConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:           "test-secret-key-0123456789",
		Issuer:              "mystery-message-test",
		TokenExpiration:     time.Hour,
		RefreshTokenEnabled: true,
		CookieName:          "session",
		BcryptCost:          bcrypt.MinCost,
	}
}

func newTestHasher() Hasher {
	return NewBcryptHasher(bcrypt.MinCost)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendVerification(ctx context.Context, v notify.Verification) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

// recordingSender accepts every message and remembers the last one.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Verification
}

func (s *recordingSender) SendVerification(_ context.Context, v notify.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
	return nil
}

func (s *recordingSender) last(t *testing.T) notify.Verification {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no verification was sent")
	return s.sent[len(s.sent)-1]
}

type fixture struct {
	repo      *mockRepository
	hasher    Hasher
	verifier  *Verifier
	registrar *Registrar
	sessions  *SessionAuthority
	messages  *Messages
	sender    *recordingSender
	config    *config.AuthConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := newTestLogger(t)
	repo := newMockRepository()
	hasher := newTestHasher()
	cfg := newTestConfig()
	sender := &recordingSender{}

	verifier := NewVerifier(repo, nil, log, time.Hour)
	verifier.now = func() time.Time { return testNow }

	sessions := NewSessionAuthority(cfg, repo, hasher, nil, nil, log)
	sessions.now = func() time.Time { return testNow }

	return &fixture{
		repo:     repo,
		hasher:   hasher,
		verifier: verifier,
		registrar: NewRegistrar(RegistrarParams{
			Repository: repo,
			Hasher:     hasher,
			Verifier:   verifier,
			Sender:     sender,
			Log:        log,
		}),
		sessions: sessions,
		messages: NewMessages(repo, log),
		sender:   sender,
		config:   cfg,
	}
}

// register signs up and returns the account together with the code sent.
func (f *fixture) register(t *testing.T, username, email, password string) (*Account, string) {
	t.Helper()
	account, err := f.registrar.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return account, f.sender.last(t).Code
}

// verified registers and verifies an account.
func (f *fixture) verified(t *testing.T, username, email, password string) *Account {
	t.Helper()
	account, code := f.register(t, username, email, password)
	outcome, err := f.verifier.Verify(context.Background(), username, code)
	require.NoError(t, err)
	require.Equal(t, OutcomeVerified, outcome)
	return f.repo.stored(account.ID)
}
