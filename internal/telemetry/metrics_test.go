package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := AccountsCreated
	Init()

	if AccountsCreated != first {
		t.Error("Init() re-registered metrics on second call")
	}
	if Logins == nil || HTTPRequests == nil || HTTPDuration == nil || JamsCreated == nil || MessagesPosted == nil {
		t.Fatal("Init() left a metric nil")
	}
}

func TestRecordLoginOutcomes(t *testing.T) {
	Init()

	success := Logins.WithLabelValues("google", OutcomeSuccess)
	failure := Logins.WithLabelValues("google", OutcomeFailure)
	beforeOK, beforeFail := testutil.ToFloat64(success), testutil.ToFloat64(failure)

	RecordLogin("google", nil)
	RecordLogin("google", errors.New("bad token"))
	RecordLogin("google", errors.New("bad token"))

	if got := testutil.ToFloat64(success) - beforeOK; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failure) - beforeFail; got != 2 {
		t.Errorf("failure delta = %v, want 2", got)
	}
}

func TestRecordAccountCreated(t *testing.T) {
	Init()

	c := AccountsCreated.WithLabelValues("facebook")
	before := testutil.ToFloat64(c)
	RecordAccountCreated("facebook")

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("accounts created delta = %v, want 1", got)
	}
}

func TestObserveRequest(t *testing.T) {
	Init()

	c := HTTPRequests.WithLabelValues("GET", "/api/jams", "200")
	before := testutil.ToFloat64(c)
	ObserveRequest("GET", "/api/jams", "200", 12*time.Millisecond)

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("request counter delta = %v, want 1", got)
	}
}
