package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Unique indexes created by migrations/00001_create_accounts.sql.
const (
	constraintEmail            = "idx_accounts_email"
	constraintVerifiedUsername = "idx_accounts_username_verified"
)

type Repository interface {
	CreateAccount(ctx context.Context, account *Account) error
	// UpdateVerification persists the password hash, code and expiry of an
	// unverified account that is being registered again.
	UpdateVerification(ctx context.Context, account *Account) error
	// MarkVerified flips IsVerified and clears the outstanding code.
	MarkVerified(ctx context.Context, id uuid.UUID) error
	SetAcceptingMessages(ctx context.Context, id uuid.UUID, accepting bool) error

	GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetVerifiedAccountByUsername(ctx context.Context, username string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	// GetAccountByUsername prefers an unverified row, newest first, so a pending
	// registration can be verified even if the name is already held.
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	// GetAccountByIdentifier matches username or email, preferring verified rows.
	GetAccountByIdentifier(ctx context.Context, identifier string) (*Account, error)

	AddMessage(ctx context.Context, message *Message) error
	ListMessages(ctx context.Context, accountID uuid.UUID) ([]Message, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAccount(ctx context.Context, account *Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return translateError(err)
	}
	return nil
}

func (r *repository) UpdateVerification(ctx context.Context, account *Account) error {
	result := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ? AND is_verified = ?", account.ID, false).
		Updates(map[string]interface{}{
			"password_hash":      account.PasswordHash,
			"verify_code":        account.VerifyCode,
			"verify_code_expiry": account.VerifyCodeExpiry,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		// Verified (or removed) between lookup and update
		return ErrEmailTaken
	}
	return nil
}

func (r *repository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_verified":        true,
			"verify_code":        nil,
			"verify_code_expiry": nil,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *repository) SetAcceptingMessages(ctx context.Context, id uuid.UUID, accepting bool) error {
	result := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ?", id).
		Update("is_accepting_messages", accepting)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *repository) GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) GetVerifiedAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return r.first(r.db.WithContext(ctx).Where("username = ? AND is_verified = ?", username, true))
}

func (r *repository) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.first(r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)))
}

func (r *repository) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return r.first(r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("is_verified ASC").
		Order("updated_at DESC"))
}

func (r *repository) GetAccountByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	return r.first(r.db.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, NormalizeEmail(identifier)).
		Order("is_verified DESC").
		Order("updated_at DESC"))
}

func (r *repository) AddMessage(ctx context.Context, message *Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *repository) ListMessages(ctx context.Context, accountID uuid.UUID) ([]Message, error) {
	var messages []Message
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) first(query *gorm.DB) (*Account, error) {
	var account Account
	if err := query.Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// translateError maps unique index violations onto the matching domain error.
// The indexes are the real guard against concurrent registrations; the lookups
// done before writing only short-circuit the common case.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case constraintEmail:
		return fmt.Errorf("%w: %s", ErrEmailTaken, pgErr.ConstraintName)
	case constraintVerifiedUsername:
		return fmt.Errorf("%w: %s", ErrUsernameTaken, pgErr.ConstraintName)
	default:
		return err
	}
}
