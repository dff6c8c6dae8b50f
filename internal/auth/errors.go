package auth

import (
	"errors"
	"strings"
)

var (
	ErrUsernameTaken          = errors.New("username is already taken")
	ErrEmailTaken             = errors.New("user already exists with this email")
	ErrNotificationFailed     = errors.New("failed to send verification email")
	ErrAccountNotFound        = errors.New("user not found")
	ErrNotVerified            = errors.New("please verify your account before login")
	ErrIncorrectPassword      = errors.New("incorrect password")
	ErrInvalidCode            = errors.New("invalid verification code")
	ErrExpiredCode            = errors.New("verification code has expired, please sign up again to get a new code")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrRegistrationInProgress = errors.New("a registration for this email is already in progress")
	ErrTooManyAttempts        = errors.New("too many sign-in attempts, try again later")
	ErrNotAcceptingMessages   = errors.New("user is not accepting messages")
	ErrInvalidInput           = errors.New("invalid input")
)

// Kind is the stable, machine-readable name of an error.
type Kind string

const (
	KindUsernameTaken          Kind = "username_taken"
	KindEmailTaken             Kind = "email_taken"
	KindNotificationFailed     Kind = "notification_failed"
	KindAccountNotFound        Kind = "account_not_found"
	KindNotVerified            Kind = "not_verified"
	KindIncorrectPassword      Kind = "incorrect_password"
	KindInvalidCode            Kind = "invalid_code"
	KindExpiredCode            Kind = "expired_code"
	KindUnauthenticated        Kind = "unauthenticated"
	KindRegistrationInProgress Kind = "registration_in_progress"
	KindTooManyAttempts        Kind = "too_many_attempts"
	KindNotAcceptingMessages   Kind = "not_accepting_messages"
	KindInvalidInput           Kind = "invalid_input"
	KindInternalFailure        Kind = "internal_failure"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUsernameTaken, KindUsernameTaken},
	{ErrEmailTaken, KindEmailTaken},
	{ErrNotificationFailed, KindNotificationFailed},
	{ErrAccountNotFound, KindAccountNotFound},
	{ErrNotVerified, KindNotVerified},
	{ErrIncorrectPassword, KindIncorrectPassword},
	{ErrInvalidCode, KindInvalidCode},
	{ErrExpiredCode, KindExpiredCode},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrRegistrationInProgress, KindRegistrationInProgress},
	{ErrTooManyAttempts, KindTooManyAttempts},
	{ErrNotAcceptingMessages, KindNotAcceptingMessages},
	{ErrInvalidInput, KindInvalidInput},
}

// KindOf classifies err. Anything that is not one of the package's sentinel
// errors is an internal failure.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternalFailure
}

// PublicMessage is the text of err that is safe to show a caller: the
// sentinel's own message, or the validation detail for invalid input.
// Internal failures have no public message.
func PublicMessage(err error) string {
	if errors.Is(err, ErrInvalidInput) {
		return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err.Error()
		}
	}
	return ""
}
