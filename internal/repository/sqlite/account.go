package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository"
)

var _ repository.AccountRepository = (*AccountDB)(nil)

// AccountDB stores accounts and profiles.
type AccountDB struct {
	conn *sql.DB
}

var accountConflicts = map[string]string{
	"accounts.email":    "email",
	"accounts.username": "username",
}

const accountColumns = `id, username, email, password_hash, first_name, last_name, created_at`

// CreateWithProfile inserts account and profile in one transaction.
//
// A duplicate email or username rolls back both rows and returns
// apperror.Conflict with Field "email" or "username".
func (a *AccountDB) CreateWithProfile(ctx context.Context, account *model.Account, profile *model.Profile) error {
	id := xid.New().String()
	createdAt := time.Now().UTC()

	err := withTx(ctx, a.conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, username, email, password_hash, first_name, last_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id,
			account.Username,
			account.Email,
			nullString(account.PasswordHash),
			account.FirstName,
			account.LastName,
			createdAt,
		)
		if err != nil {
			if conflict := conflictFor("account", err, accountConflicts); conflict != nil {
				return conflict
			}
			return fmt.Errorf("sqlite: inserting account %q: %w", account.Username, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (account_id, instruments, genres, skill_level, bio, location,
			                       avatar_key, avatar_url, instagram_handle, tiktok_handle)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			profile.Instruments,
			profile.Genres,
			profile.SkillLevel,
			profile.Bio,
			profile.Location,
			profile.AvatarKey,
			profile.AvatarURL,
			profile.InstagramHandle,
			profile.TikTokHandle,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting profile for %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	account.ID = id
	account.CreatedAt = createdAt
	profile.AccountID = id
	return nil
}

func (a *AccountDB) GetByID(ctx context.Context, id string) (*model.Account, error) {
	row := a.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	acc, err := scanAccount(row)
	if err != nil {
		if notFound(err) {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", id, err)
	}
	return acc, nil
}

func (a *AccountDB) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := a.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	acc, err := scanAccount(row)
	if err != nil {
		if notFound(err) {
			return nil, apperror.NotFound("account", email)
		}
		return nil, fmt.Errorf("sqlite: getting account by email: %w", err)
	}
	return acc, nil
}

func (a *AccountDB) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := a.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
	acc, err := scanAccount(row)
	if err != nil {
		if notFound(err) {
			return nil, apperror.NotFound("account", username)
		}
		return nil, fmt.Errorf("sqlite: getting account by username %q: %w", username, err)
	}
	return acc, nil
}

func (a *AccountDB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := a.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE username = ?`, username,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", username, err)
	}
	return n > 0, nil
}

func (a *AccountDB) GetProfile(ctx context.Context, accountID string) (*model.Profile, error) {
	var p model.Profile
	err := a.conn.QueryRowContext(ctx,
		`SELECT account_id, instruments, genres, skill_level, bio, location,
		        avatar_key, avatar_url, instagram_handle, tiktok_handle
		 FROM profiles WHERE account_id = ?`,
		accountID,
	).Scan(
		&p.AccountID,
		&p.Instruments,
		&p.Genres,
		&p.SkillLevel,
		&p.Bio,
		&p.Location,
		&p.AvatarKey,
		&p.AvatarURL,
		&p.InstagramHandle,
		&p.TikTokHandle,
	)
	if err != nil {
		if notFound(err) {
			return nil, apperror.NotFound("profile", accountID)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", accountID, err)
	}
	return &p, nil
}

func (a *AccountDB) UpdateProfile(ctx context.Context, p *model.Profile) error {
	result, err := a.conn.ExecContext(ctx,
		`UPDATE profiles
		 SET instruments = ?, genres = ?, skill_level = ?, bio = ?, location = ?,
		     avatar_key = ?, avatar_url = ?, instagram_handle = ?, tiktok_handle = ?
		 WHERE account_id = ?`,
		p.Instruments,
		p.Genres,
		p.SkillLevel,
		p.Bio,
		p.Location,
		p.AvatarKey,
		p.AvatarURL,
		p.InstagramHandle,
		p.TikTokHandle,
		p.AccountID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", p.AccountID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("profile", p.AccountID)
	}
	return nil
}

// SetFallbackAvatar is a single conditional UPDATE, so a concurrent upload
// can never be overwritten by a social-login picture.
func (a *AccountDB) SetFallbackAvatar(ctx context.Context, accountID, url string) (bool, error) {
	result, err := a.conn.ExecContext(ctx,
		`UPDATE profiles SET avatar_url = ?
		 WHERE account_id = ? AND avatar_key = '' AND avatar_url <> ?`,
		url, accountID, url,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: setting fallback avatar for %s: %w", accountID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}

func scanAccount(row scanner) (*model.Account, error) {
	var (
		acc  model.Account
		hash sql.NullString
	)
	if err := row.Scan(
		&acc.ID,
		&acc.Username,
		&acc.Email,
		&hash,
		&acc.FirstName,
		&acc.LastName,
		&acc.CreatedAt,
	); err != nil {
		return nil, err
	}
	acc.PasswordHash = hash.String
	return &acc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
