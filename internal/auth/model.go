package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Account struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username            string    `gorm:"size:20;not null;index"`
	Email               string    `gorm:"size:320;not null;uniqueIndex:idx_accounts_email"`
	PasswordHash        string    `gorm:"not null"`
	VerifyCode          *string   `gorm:"size:6"`
	VerifyCodeExpiry    *time.Time
	IsVerified          bool      `gorm:"not null"`
	IsAcceptingMessages bool      `gorm:"not null"`
	Messages            []Message `gorm:"foreignKey:AccountID"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetVerification replaces the outstanding code. Code and expiry always move together.
func (a *Account) SetVerification(code string, expiry time.Time) {
	a.VerifyCode = &code
	a.VerifyCodeExpiry = &expiry
}

// Claims returns the public attributes embedded in a session token.
func (a *Account) Claims() SessionClaims {
	return SessionClaims{
		ID:                  a.ID.String(),
		IsVerified:          a.IsVerified,
		IsAcceptingMessages: a.IsAcceptingMessages,
		Username:            a.Username,
	}
}

type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"_id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Content   string    `gorm:"size:300;not null" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// SessionClaims is the identity carried inside a session token.
type SessionClaims struct {
	ID                  string `json:"_id"`
	IsVerified          bool   `json:"isVerified"`
	IsAcceptingMessages bool   `json:"isAcceptingMessages"`
	Username            string `json:"username"`
}
