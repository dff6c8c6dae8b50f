package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockRepository keeps accounts in memory and enforces the same unique
// constraints as the database: one row per email and one verified row per
// username.
type mockRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account
	messages []Message
	clock    time.Time

	// failWith, when set, is returned by every call.
	failWith error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts: make(map[uuid.UUID]*Account),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so ordering is deterministic.
func (r *mockRepository) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func clone(a *Account) *Account {
	c := *a
	if a.VerifyCode != nil {
		code := *a.VerifyCode
		c.VerifyCode = &code
	}
	if a.VerifyCodeExpiry != nil {
		expiry := *a.VerifyCodeExpiry
		c.VerifyCodeExpiry = &expiry
	}
	c.Messages = nil
	return &c
}

func (r *mockRepository) verifiedHolder(username string, except uuid.UUID) bool {
	for _, a := range r.accounts {
		if a.ID != except && a.IsVerified && a.Username == username {
			return true
		}
	}
	return false
}

func (r *mockRepository) CreateAccount(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}

	for _, a := range r.accounts {
		if a.Email == account.Email {
			return ErrEmailTaken
		}
	}
	if account.IsVerified && r.verifiedHolder(account.Username, uuid.Nil) {
		return ErrUsernameTaken
	}

	_ = account.BeforeCreate(nil)
	now := r.tick()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.ID] = clone(account)
	return nil
}

func (r *mockRepository) UpdateVerification(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}

	stored, ok := r.accounts[account.ID]
	if !ok || stored.IsVerified {
		return ErrEmailTaken
	}
	updated := clone(account)
	stored.PasswordHash = updated.PasswordHash
	stored.VerifyCode = updated.VerifyCode
	stored.VerifyCodeExpiry = updated.VerifyCodeExpiry
	stored.UpdatedAt = r.tick()
	return nil
}

func (r *mockRepository) MarkVerified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}

	stored, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if r.verifiedHolder(stored.Username, id) {
		return ErrUsernameTaken
	}
	stored.IsVerified = true
	stored.VerifyCode = nil
	stored.VerifyCodeExpiry = nil
	stored.UpdatedAt = r.tick()
	return nil
}

func (r *mockRepository) SetAcceptingMessages(_ context.Context, id uuid.UUID, accepting bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}

	stored, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	stored.IsAcceptingMessages = accepting
	stored.UpdatedAt = r.tick()
	return nil
}

// find returns the best match under less, or ErrAccountNotFound.
func (r *mockRepository) find(match func(*Account) bool, less func(a, b *Account) bool) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failWith != nil {
		return nil, r.failWith
	}

	var found []*Account
	for _, a := range r.accounts {
		if match(a) {
			found = append(found, a)
		}
	}
	if len(found) == 0 {
		return nil, ErrAccountNotFound
	}
	if less != nil {
		sort.Slice(found, func(i, j int) bool { return less(found[i], found[j]) })
	}
	return clone(found[0]), nil
}

func (r *mockRepository) GetAccountByID(_ context.Context, id uuid.UUID) (*Account, error) {
	return r.find(func(a *Account) bool { return a.ID == id }, nil)
}

func (r *mockRepository) GetVerifiedAccountByUsername(_ context.Context, username string) (*Account, error) {
	return r.find(func(a *Account) bool { return a.IsVerified && a.Username == username }, nil)
}

func (r *mockRepository) GetAccountByEmail(_ context.Context, email string) (*Account, error) {
	email = NormalizeEmail(email)
	return r.find(func(a *Account) bool { return a.Email == email }, nil)
}

func (r *mockRepository) GetAccountByUsername(_ context.Context, username string) (*Account, error) {
	return r.find(
		func(a *Account) bool { return a.Username == username },
		func(a, b *Account) bool {
			if a.IsVerified != b.IsVerified {
				return !a.IsVerified
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		},
	)
}

func (r *mockRepository) GetAccountByIdentifier(_ context.Context, identifier string) (*Account, error) {
	email := NormalizeEmail(identifier)
	return r.find(
		func(a *Account) bool { return a.Username == identifier || a.Email == email },
		func(a, b *Account) bool {
			if a.IsVerified != b.IsVerified {
				return a.IsVerified
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		},
	)
}

func (r *mockRepository) AddMessage(_ context.Context, message *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}

	_ = message.BeforeCreate(nil)
	message.CreatedAt = r.tick()
	r.messages = append(r.messages, *message)
	return nil
}

func (r *mockRepository) ListMessages(_ context.Context, accountID uuid.UUID) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failWith != nil {
		return nil, r.failWith
	}

	var out []Message
	for _, m := range r.messages {
		if m.AccountID == accountID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// seed stores account as-is, bypassing the constraints.
func (r *mockRepository) seed(account *Account) *Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	_ = account.BeforeCreate(nil)
	now := r.tick()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Email == "" {
		account.Email = strings.ToLower(account.Username) + "@example.com"
	}
	r.accounts[account.ID] = clone(account)
	return account
}

func (r *mockRepository) stored(id uuid.UUID) *Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.accounts[id]; ok {
		return clone(a)
	}
	return nil
}
