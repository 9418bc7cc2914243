package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/jamspace/internal/auth"
	"github.com/sakif/jamspace/internal/handler"
	"github.com/sakif/jamspace/internal/repository/sqlite"
	"github.com/sakif/jamspace/internal/service"
	"github.com/sakif/jamspace/internal/storage"
)

// stubProvider resolves every credential to the same identity.
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

type fixture struct {
	users   *handler.UserHandler
	jams    *handler.JamHandler
	authSvc *service.AuthService
	tokens  *auth.TokenService
	google  *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-123456", 0, 0)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceWithCost(bcrypt.MinCost)

	store, err := storage.NewLocalStore(t.TempDir(), "http://api.test")
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

	accounts := db.Accounts()
	authSvc := service.NewAuthService(
		accounts,
		service.NewReconciler(accounts, logger),
		tokens,
		passwords,
		store,
		logger,
		auth.NewPasswordProvider(accounts, passwords),
		google,
	)
	jamSvc := service.NewJamService(db.Jams(), db.Participations(), db.Messages(), logger)

	return &fixture{
		users:   handler.NewUserHandler(authSvc, logger),
		jams:    handler.NewJamHandler(jamSvc, logger),
		authSvc: authSvc,
		tokens:  tokens,
		google:  google,
	}
}

// register creates a password account and returns its ID.
func (f *fixture) register(t *testing.T, username string) string {
	t.Helper()
	user, err := f.authSvc.Register(context.Background(), service.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	return user.ID
}

// call runs h against a request carrying the signed-in account (if any)
// and chi URL params.
type call struct {
	method    string
	target    string
	body      string
	accountID string
	params    map[string]string
}

func (c call) run(h http.HandlerFunc) *httptest.ResponseRecorder {
	var body io.Reader
	if c.body != "" {
		body = bytes.NewBufferString(c.body)
	}
	req := httptest.NewRequest(c.method, c.target, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req = withRoute(req, c.accountID, c.params)

	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func withRoute(req *http.Request, accountID string, params map[string]string) *http.Request {
	ctx := req.Context()
	if accountID != "" {
		ctx = auth.WithAccountID(ctx, accountID)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}
