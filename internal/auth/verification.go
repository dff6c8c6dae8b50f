package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
)

const (
	codeDigits     = 6
	DefaultCodeTTL = time.Hour
)

var codeSpace = big.NewInt(1_000_000)

type Outcome int

const (
	OutcomeInvalid Outcome = iota
	OutcomeExpired
	OutcomeVerified
	OutcomeAlreadyVerified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeAlreadyVerified:
		return "already_verified"
	case OutcomeExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Verifier issues one-time codes and adjudicates verification attempts.
type Verifier struct {
	repository Repository
	metrics    *Metrics
	log        *zap.Logger
	codeTTL    time.Duration
	now        func() time.Time
}

func NewVerifier(repo Repository, metrics *Metrics, log *zap.Logger, codeTTL time.Duration) *Verifier {
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	return &Verifier{
		repository: repo,
		metrics:    metrics,
		log:        log,
		codeTTL:    codeTTL,
		now:        time.Now,
	}
}

// GenerateCode returns a uniformly drawn 6-digit code, leading zeros kept.
func (v *Verifier) GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func (v *Verifier) ComputeExpiry(from time.Time) time.Time {
	return from.Add(v.codeTTL)
}

// CheckCode compares code against the account's outstanding code. Only
// OutcomeVerified writes to the store; the code is valid while now < expiry.
func (v *Verifier) CheckCode(ctx context.Context, account *Account, code string) (Outcome, error) {
	if account.IsVerified {
		return OutcomeAlreadyVerified, nil
	}

	if account.VerifyCode == nil || account.VerifyCodeExpiry == nil ||
		subtle.ConstantTimeCompare([]byte(*account.VerifyCode), []byte(code)) != 1 {
		return OutcomeInvalid, nil
	}

	if !v.now().Before(*account.VerifyCodeExpiry) {
		return OutcomeExpired, nil
	}

	if err := v.repository.MarkVerified(ctx, account.ID); err != nil {
		return OutcomeInvalid, err
	}

	account.IsVerified = true
	account.VerifyCode = nil
	account.VerifyCodeExpiry = nil

	v.log.Info("account verified",
		zap.String("account_id", account.ID.String()),
		zap.String("username", account.Username))

	return OutcomeVerified, nil
}

// Verify looks the account up by username and checks the submitted code.
// Invalid and expired codes come back as ErrInvalidCode and ErrExpiredCode.
func (v *Verifier) Verify(ctx context.Context, username, code string) (Outcome, error) {
	outcome, err := v.verify(ctx, username, code)
	v.metrics.observeVerification(outcome, err)
	return outcome, err
}

func (v *Verifier) verify(ctx context.Context, username, code string) (Outcome, error) {
	account, err := v.repository.GetAccountByUsername(ctx, username)
	if err != nil {
		return OutcomeInvalid, err
	}

	outcome, err := v.CheckCode(ctx, account, code)
	if err != nil {
		return outcome, err
	}

	switch outcome {
	case OutcomeInvalid:
		return outcome, ErrInvalidCode
	case OutcomeExpired:
		return outcome, ErrExpiredCode
	default:
		return outcome, nil
	}
}
