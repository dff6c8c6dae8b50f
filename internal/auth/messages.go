package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Messages handles the anonymous messages an account receives.
type Messages struct {
	repository Repository
	log        *zap.Logger
}

func NewMessages(repo Repository, log *zap.Logger) *Messages {
	return &Messages{
		repository: repo,
		log:        log,
	}
}

// Send appends content to the inbox of the verified account named username.
func (m *Messages) Send(ctx context.Context, username, content string) error {
	account, err := m.repository.GetVerifiedAccountByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !account.IsAcceptingMessages {
		return ErrNotAcceptingMessages
	}

	message := &Message{
		AccountID: account.ID,
		Content:   content,
	}
	if err := m.repository.AddMessage(ctx, message); err != nil {
		return fmt.Errorf("adding message: %w", err)
	}

	m.log.Debug("message delivered", zap.String("account_id", account.ID.String()))
	return nil
}

// List returns the account's messages, newest first.
func (m *Messages) List(ctx context.Context, accountID uuid.UUID) ([]Message, error) {
	return m.repository.ListMessages(ctx, accountID)
}

// SetAcceptingMessages updates the flag and returns the refreshed account.
func (m *Messages) SetAcceptingMessages(ctx context.Context, accountID uuid.UUID, accepting bool) (*Account, error) {
	if err := m.repository.SetAcceptingMessages(ctx, accountID, accepting); err != nil {
		return nil, err
	}
	return m.repository.GetAccountByID(ctx, accountID)
}

// AcceptingMessages reports the stored flag, not the possibly stale token claim.
func (m *Messages) AcceptingMessages(ctx context.Context, accountID uuid.UUID) (bool, error) {
	account, err := m.repository.GetAccountByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	return account.IsAcceptingMessages, nil
}
