package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/notify"
)

const defaultNotificationTimeout = 10 * time.Second

// Locker serializes work on a key across processes.
type Locker interface {
	// Acquire returns ErrRegistrationInProgress when the key is already held.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Registrar creates accounts, or re-arms unverified ones, and sends the code.
type Registrar struct {
	repository  Repository
	hasher      Hasher
	verifier    *Verifier
	sender      notify.Sender
	locker      Locker
	metrics     *Metrics
	log         *zap.Logger
	sendTimeout time.Duration
}

type RegistrarParams struct {
	Repository  Repository
	Hasher      Hasher
	Verifier    *Verifier
	Sender      notify.Sender
	Locker      Locker
	Metrics     *Metrics
	Log         *zap.Logger
	SendTimeout time.Duration
}

func NewRegistrar(p RegistrarParams) *Registrar {
	if p.Locker == nil {
		p.Locker = noopLocker{}
	}
	if p.SendTimeout <= 0 {
		p.SendTimeout = defaultNotificationTimeout
	}
	return &Registrar{
		repository:  p.Repository,
		hasher:      p.Hasher,
		verifier:    p.Verifier,
		sender:      p.Sender,
		locker:      p.Locker,
		metrics:     p.Metrics,
		log:         p.Log,
		sendTimeout: p.SendTimeout,
	}
}

// Register runs the sign-up flow. On success the account is persisted with a
// fresh code and the notification has been accepted. ErrNotificationFailed
// leaves the account in place; registering again issues a new code.
func (r *Registrar) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	account, err := r.register(ctx, in)
	r.metrics.observeRegistration(err)
	return account, err
}

func (r *Registrar) register(ctx context.Context, in RegisterInput) (*Account, error) {
	release, err := r.locker.Acquire(ctx, "register:"+in.Email)
	if err != nil {
		return nil, err
	}
	defer release()

	// Check if a verified user holds the username
	_, err = r.repository.GetVerifiedAccountByUsername(ctx, in.Username)
	switch {
	case err == nil:
		return nil, ErrUsernameTaken
	case !errors.Is(err, ErrAccountNotFound):
		return nil, fmt.Errorf("looking up username: %w", err)
	}

	existing, err := r.repository.GetAccountByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("looking up email: %w", err)
	}
	if existing != nil && existing.IsVerified {
		return nil, ErrEmailTaken
	}

	hash, err := r.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	code, err := r.verifier.GenerateCode()
	if err != nil {
		return nil, err
	}
	expiry := r.verifier.ComputeExpiry(r.verifier.now())

	var account *Account
	if existing != nil {
		// Unverified account with this email: re-arm it in place
		existing.PasswordHash = hash
		existing.SetVerification(code, expiry)
		if err := r.repository.UpdateVerification(ctx, existing); err != nil {
			return nil, err
		}
		account = existing
	} else {
		account = &Account{
			Username:            in.Username,
			Email:               in.Email,
			PasswordHash:        hash,
			IsVerified:          false,
			IsAcceptingMessages: true,
		}
		account.SetVerification(code, expiry)
		if err := r.repository.CreateAccount(ctx, account); err != nil {
			return nil, err
		}
	}

	if err := r.notify(ctx, account, code, expiry); err != nil {
		r.log.Error("failed to send verification email",
			zap.String("account_id", account.ID.String()),
			zap.Error(err))
		return account, ErrNotificationFailed
	}

	r.log.Info("registration pending verification",
		zap.String("account_id", account.ID.String()),
		zap.String("username", account.Username),
		zap.Bool("reused", existing != nil))

	return account, nil
}

func (r *Registrar) notify(ctx context.Context, account *Account, code string, expiry time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	return r.sender.SendVerification(ctx, notify.Verification{
		Email:     account.Email,
		Username:  account.Username,
		Code:      code,
		ExpiresAt: expiry,
	})
}
