package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("unit-test-secret")

func signToken(t *testing.T, accountID, role string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"account_id": accountID,
		"role":       role,
		"sub":        accountID,
		"exp":        expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func mustToken(t *testing.T, accountID, role string) string {
	return signToken(t, accountID, role, time.Now().Add(time.Hour))
}

func newTestHandler(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	mw := NewMiddleware(testSecret, NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	return mw.Wrap(next), &called
}

func doRequest(handler http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	handler, called := newTestHandler(t)
	rec := doRequest(handler, http.MethodGet, "/api/v1/settlements", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if *called {
		t.Fatal("handler must not run without a token")
	}
}

func TestMiddlewareRejectsBadSignature(t *testing.T) {
	handler, _ := newTestHandler(t)
	claims := jwt.MapClaims{"account_id": "0.0.1001", "role": "platform"}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec := doRequest(handler, http.MethodGet, "/api/v1/settlements", signed)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsMalformedAccountID(t *testing.T) {
	handler, called := newTestHandler(t)
	rec := doRequest(handler, http.MethodGet, "/api/v1/settlements", mustToken(t, "not-an-account", "platform"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if *called {
		t.Fatal("handler must not run for a malformed account id")
	}
}

func TestMiddlewareEnforcesRoleRank(t *testing.T) {
	handler, called := newTestHandler(t)

	rec := doRequest(handler, http.MethodPost, "/api/v1/settlements", mustToken(t, "0.0.1001", "viewer"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer POST status = %d, want 403", rec.Code)
	}
	if *called {
		t.Fatal("handler must not run for an underprivileged role")
	}

	rec = doRequest(handler, http.MethodPost, "/api/v1/settlements", mustToken(t, "0.0.1002", "operator"))
	if rec.Code != http.StatusOK {
		t.Fatalf("operator POST status = %d, want 200", rec.Code)
	}
}

func TestMiddlewareApprovalNeedsPlatform(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(handler, http.MethodPost, "/api/v1/settlements/stl-1/approve", mustToken(t, "0.0.1001", "operator"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("operator approve status = %d, want 403", rec.Code)
	}
	rec = doRequest(handler, http.MethodPost, "/api/v1/settlements/stl-1/approve", mustToken(t, "0.0.1002", "platform"))
	if rec.Code != http.StatusOK {
		t.Fatalf("platform approve status = %d, want 200", rec.Code)
	}
}

func TestMiddlewareExportNeedsInvestor(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(handler, http.MethodGet, "/api/v1/reports/export", mustToken(t, "0.0.1001", "viewer"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer export status = %d, want 403", rec.Code)
	}
	rec = doRequest(handler, http.MethodGet, "/api/v1/reports/export", mustToken(t, "0.0.1002", "investor"))
	if rec.Code != http.StatusOK {
		t.Fatalf("investor export status = %d, want 200", rec.Code)
	}
}

func TestMiddlewareExemptPathsSkipAuth(t *testing.T) {
	handler, called := newTestHandler(t)
	rec := doRequest(handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
	if !*called {
		t.Fatal("exempt path must reach the handler")
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	token := signToken(t, "0.0.1001", "platform", time.Now().Add(-time.Minute))
	rec := doRequest(handler, http.MethodGet, "/api/v1/settlements", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewarePopulatesIdentity(t *testing.T) {
	var got Identity
	var present bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, present = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mw := NewMiddleware(testSecret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(next)

	rec := doRequest(handler, http.MethodGet, "/api/v1/reports", mustToken(t, "0.0.9009", "operator"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !present || got.AccountID != "0.0.9009" || got.Role != RoleOperator {
		t.Fatalf("identity = %+v (present=%v)", got, present)
	}
	if AccountIDFromContext(nil) != "" {
		t.Fatal("nil context must yield an empty account id")
	}
}

func TestValidAccountID(t *testing.T) {
	valid := []string{"0.0.1001", "1.2.3", "10.20.300"}
	for _, id := range valid {
		if !ValidAccountID(id) {
			t.Fatalf("ValidAccountID(%q) = false", id)
		}
	}
	invalid := []string{"", "0.0", "0.0.0.0", "0.0.", "a.b.c", "0.0.1x", "-1.0.1"}
	for _, id := range invalid {
		if ValidAccountID(id) {
			t.Fatalf("ValidAccountID(%q) = true", id)
		}
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	token := signToken(t, "0.0.1001", "superuser", time.Now().Add(time.Hour))
	if _, err := ParseToken(token, testSecret); err == nil {
		t.Fatal("unknown role must be rejected")
	}
}
