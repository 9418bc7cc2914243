package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/auth"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository"
)

const (
	// MaxUsernameLength matches the registration rule.
	MaxUsernameLength = 30
	// usernameBaseLength leaves room for a two-digit suffix.
	usernameBaseLength  = 28
	maxUsernameAttempts = 100
	fallbackUsername    = "user"
)

// Reconciler maps a verified identity to exactly one local account, keyed by
// email. It is shared by every login flow.
//
// CONCURRENCY:
// Two first-time logins can race. The store's UNIQUE constraints decide the
// winner: a username collision moves on to the next suffix, and an email
// collision means the other request already created this person's account,
// so we read that one back.
type Reconciler struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// NewReconciler builds the reconciler every login flow shares.
func NewReconciler(accounts repository.AccountRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{accounts: accounts, logger: logger}
}

// Reconcile returns the account for id.Email, creating it (with a profile)
// on first sight. Existing accounts keep their username and names; only the
// fallback avatar may change. created reports whether this call inserted it.
func (r *Reconciler) Reconcile(ctx context.Context, id *auth.VerifiedIdentity) (account *model.Account, created bool, err error) {
	if id == nil || strings.TrimSpace(id.Email) == "" {
		return nil, false, apperror.Unauthenticated("Identity has no email.")
	}

	account, err = r.accounts.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		account, created, err = r.create(ctx, id)
		if err != nil {
			return nil, false, err
		}
	default:
		return nil, false, fmt.Errorf("service/identity: looking up %s account: %w", id.Provider, err)
	}

	r.seedAvatar(ctx, account.ID, id.PictureURL)
	return account, created, nil
}

// create runs the optimistic insert loop. It returns created=false when a
// concurrent request inserted the same email first.
func (r *Reconciler) create(ctx context.Context, id *auth.VerifiedIdentity) (*model.Account, bool, error) {
	base := UsernameBase(id)
	first, last := splitNames(id)

	for n := 0; n < maxUsernameAttempts; n++ {
		candidate := usernameCandidate(base, n)

		taken, err := r.accounts.UsernameExists(ctx, candidate)
		if err != nil {
			return nil, false, fmt.Errorf("service/identity: checking username %q: %w", candidate, err)
		}
		if taken {
			continue
		}

		account := &model.Account{
			Username:  candidate,
			Email:     id.Email,
			FirstName: first,
			LastName:  last,
		}
		err = r.accounts.CreateWithProfile(ctx, account, &model.Profile{})
		switch {
		case err == nil:
			r.logger.Info("account created",
				slog.String("accountID", account.ID),
				slog.String("username", account.Username),
				slog.String("provider", id.Provider),
			)
			return account, true, nil

		case apperror.IsConflictOn(err, "username"):
			// Taken between the check and the insert.
			continue

		case apperror.IsConflictOn(err, "email"):
			winner, getErr := r.accounts.GetByEmail(ctx, id.Email)
			if getErr != nil {
				return nil, false, fmt.Errorf("service/identity: re-reading account after email race: %w", getErr)
			}
			r.logger.Debug("lost account creation race",
				slog.String("accountID", winner.ID),
				slog.String("provider", id.Provider),
			)
			return winner, false, nil

		default:
			return nil, false, fmt.Errorf("service/identity: creating account: %w", err)
		}
	}

	return nil, false, fmt.Errorf("service/identity: no free username for base %q after %d attempts", base, maxUsernameAttempts)
}

// seedAvatar stores pictureURL as the fallback avatar. A failure here never
// blocks the login; it is logged and retried on the next one.
func (r *Reconciler) seedAvatar(ctx context.Context, accountID, pictureURL string) {
	if pictureURL == "" {
		return
	}
	changed, err := r.accounts.SetFallbackAvatar(ctx, accountID, pictureURL)
	if err != nil {
		r.logger.Warn("failed to seed avatar",
			slog.String("accountID", accountID),
			slog.String("error", err.Error()),
		)
		return
	}
	if changed {
		r.logger.Debug("avatar seeded", slog.String("accountID", accountID))
	}
}

// UsernameBase derives the handle new usernames start from: the display name
// with whitespace removed and lower-cased when there is one, otherwise the
// email local-part. The result is at most 28 runes and never empty.
func UsernameBase(id *auth.VerifiedIdentity) string {
	var base string
	if id.DisplayName != "" {
		base = strings.ToLower(strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, id.DisplayName))
	} else {
		base, _, _ = strings.Cut(id.Email, "@")
	}

	if runes := []rune(base); len(runes) > usernameBaseLength {
		base = string(runes[:usernameBaseLength])
	}
	if base == "" {
		base = fallbackUsername
	}
	return base
}

func usernameCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + strconv.Itoa(n)
}

// splitNames prefers explicit given/family names and otherwise splits the
// display name: first token, and last token when there is more than one.
func splitNames(id *auth.VerifiedIdentity) (first, last string) {
	if id.GivenName != "" || id.FamilyName != "" {
		return id.GivenName, id.FamilyName
	}
	parts := strings.Fields(id.DisplayName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}
