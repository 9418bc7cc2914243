package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/model"
)

// AccountLookup is the slice of the account store the password provider needs.
type AccountLookup interface {
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
}

// PasswordProvider authenticates username + password against stored bcrypt
// hashes. Social-only accounts have no hash and can never log in this way.
type PasswordProvider struct {
	accounts  AccountLookup
	passwords *PasswordService
}

// NewPasswordProvider checks username and password against the account store.
func NewPasswordProvider(accounts AccountLookup, passwords *PasswordService) *PasswordProvider {
	return &PasswordProvider{accounts: accounts, passwords: passwords}
}

func (p *PasswordProvider) Name() string { return ProviderPassword }

// Resolve never says which of username or password was wrong.
func (p *PasswordProvider) Resolve(ctx context.Context, creds Credentials) (*VerifiedIdentity, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := p.accounts.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: password: looking up account: %w", err)
	}
	if !account.HasPassword() {
		return nil, ErrInvalidCredentials
	}

	if err := p.passwords.Verify(account.PasswordHash, creds.Password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: password: %w", err)
	}

	return &VerifiedIdentity{
		Provider:  ProviderPassword,
		AccountID: account.ID,
		Email:     account.Email,
	}, nil
}
