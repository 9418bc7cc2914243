package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/jamspace/internal/auth"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository/sqlite"
	"github.com/sakif/jamspace/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// stubProvider returns a fixed identity, or err when set.
type stubProvider struct {
	name     string
	identity auth.VerifiedIdentity
	err      error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Resolve(context.Context, auth.Credentials) (*auth.VerifiedIdentity, error) {
	if s.err != nil {
		return nil, s.err
	}
	id := s.identity
	id.Provider = s.name
	return &id, nil
}

type authFixture struct {
	db      *sqlite.DB
	svc     *AuthService
	tokens  *auth.TokenService
	store   *storage.LocalStore
	google  *stubProvider
	mediaTo string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestDB(t)
	logger := discardLogger()

	tokens, err := auth.NewTokenService("service-test-secret-123456", 0, 0)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceWithCost(bcrypt.MinCost)

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "http://api.test")
	require.NoError(t, err)

	google := &stubProvider{
		name: auth.ProviderGoogle,
		identity: auth.VerifiedIdentity{
			Email:      "jane@example.com",
			GivenName:  "Jane",
			FamilyName: "Doe",
			PictureURL: "https://img.example.com/jane.png",
		},
	}

	svc := NewAuthService(
		db.Accounts(),
		NewReconciler(db.Accounts(), logger),
		tokens,
		passwords,
		store,
		logger,
		auth.NewPasswordProvider(db.Accounts(), passwords),
		google,
	)
	return &authFixture{db: db, svc: svc, tokens: tokens, store: store, google: google, mediaTo: dir}
}

func createAccount(t *testing.T, db *sqlite.DB, username string) *model.Account {
	t.Helper()
	acc := &model.Account{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Accounts().CreateWithProfile(context.Background(), acc, &model.Profile{}))
	return acc
}

func validJamInput() JamInput {
	return JamInput{
		Title:           "Sunday blues",
		Description:     "12-bar jams, all welcome",
		Genre:           model.GenreJazz,
		SkillLevel:      model.SkillBeginner,
		Location:        "Neukölln",
		DateTime:        time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC),
		MaxParticipants: 6,
	}
}
