package auth

import (
	"strings"
	"testing"
	"time"
)

// newTestTokenService uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", 0, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", 0, 0); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTLs(t *testing.T) {
	ts := newTestTokenService(t)
	if ts.accessTTL != DefaultAccessTTL || ts.refreshTTL != DefaultRefreshTTL {
		t.Errorf("TTLs = %v/%v, want %v/%v", ts.accessTTL, ts.refreshTTL, DefaultAccessTTL, DefaultRefreshTTL)
	}
}

// =========================================================================
// PAIR ISSUANCE
// =========================================================================

func TestIssuePair_BothTokensLookLikeJWTs(t *testing.T) {
	ts := newTestTokenService(t)

	pair, err := ts.IssuePair("acc-123")
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	for name, tok := range map[string]string{"access": pair.Access, "refresh": pair.Refresh} {
		if strings.Count(tok, ".") != 2 {
			t.Errorf("%s token doesn't look like a JWT: %q", name, tok)
		}
	}
	if pair.Access == pair.Refresh {
		t.Error("access and refresh tokens are identical")
	}
}

func TestIssuePair_EmptySubject(t *testing.T) {
	ts := newTestTokenService(t)
	if _, err := ts.IssuePair(""); err == nil {
		t.Fatal("IssuePair(\"\") should fail")
	}
}

func TestIssuePair_SameSecondTokensDiffer(t *testing.T) {
	ts := newTestTokenService(t)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return fixed }

	a, _ := ts.IssuePair("acc-1")
	b, _ := ts.IssuePair("acc-1")
	if a.Access == b.Access {
		t.Error("two access tokens issued in the same instant are identical (jti missing?)")
	}
}

// =========================================================================
// VALIDATION
// =========================================================================

func TestValidateAccess_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.IssuePair("acc-abc")

	got, err := ts.ValidateAccess(pair.Access)
	if err != nil {
		t.Fatalf("ValidateAccess() error = %v", err)
	}
	if got != "acc-abc" {
		t.Errorf("ValidateAccess() = %q, want %q", got, "acc-abc")
	}
}

func TestValidateAccess_RejectsRefreshToken(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.IssuePair("acc-abc")

	if _, err := ts.ValidateAccess(pair.Refresh); err == nil {
		t.Fatal("ValidateAccess() accepted a refresh token")
	}
}

func TestValidateAccess_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("acc-123", AccessToken, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	if _, err := ts.ValidateAccess(token); err == nil {
		t.Fatal("ValidateAccess() should return an error for an expired token")
	}
}

func TestValidateAccess_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.IssuePair("acc-123")

	tampered := pair.Access[:len(pair.Access)-3] + "xxx"
	if _, err := ts.ValidateAccess(tampered); err == nil {
		t.Fatal("ValidateAccess() should return an error for a tampered token")
	}
}

func TestValidateAccess_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", 0, 0)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", 0, 0)

	pair, _ := ts1.IssuePair("acc-123")
	if _, err := ts2.ValidateAccess(pair.Access); err == nil {
		t.Fatal("ValidateAccess() should fail when using a different secret")
	}
}

func TestValidateAccess_Garbage(t *testing.T) {
	ts := newTestTokenService(t)
	for _, tok := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.ValidateAccess(tok); err == nil {
			t.Errorf("ValidateAccess(%q) should fail", tok)
		}
	}
}

// =========================================================================
// REFRESH
// =========================================================================

func TestRefresh_IssuesAccessForSameSubject(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.IssuePair("acc-777")

	access, err := ts.Refresh(pair.Refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	sub, err := ts.ValidateAccess(access)
	if err != nil {
		t.Fatalf("ValidateAccess(refreshed) error = %v", err)
	}
	if sub != "acc-777" {
		t.Errorf("refreshed subject = %q, want %q", sub, "acc-777")
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.IssuePair("acc-777")

	if _, err := ts.Refresh(pair.Access); err == nil {
		t.Fatal("Refresh() accepted an access token")
	}
}
