package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/assembly-hq/assembly/pkg/authz"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, subject string, roles []string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &accessClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

type capturedRequest struct {
	principal   authz.Principal
	parseFailed bool
}

func runAuthMiddleware(t *testing.T, observer MalformedClaimObserver, authorization string) capturedRequest {
	t.Helper()

	mw := NewAuthMiddleware(NewJWTVerifier(testSecret), observer, nil, nil)

	var captured capturedRequest
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.principal = PrincipalFromContext(r.Context())
		captured.parseFailed = claimsParseFailed(r.Context())
	}))

	req := httptest.NewRequest("GET", "/orgs/31/members", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return captured
}

func TestAuthMiddlewareNoToken(t *testing.T) {
	captured := runAuthMiddleware(t, nil, "")

	if !captured.principal.Anonymous {
		t.Error("missing token must yield an anonymous principal")
	}
	if captured.parseFailed {
		t.Error("no token means no parse failure")
	}
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	token := signToken(t, "user-1", []string{"A31", "M7"})
	captured := runAuthMiddleware(t, nil, "Bearer "+token)

	if captured.principal.Anonymous {
		t.Fatal("valid token must yield an authenticated principal")
	}
	if captured.principal.SubjectID != "user-1" {
		t.Errorf("SubjectID = %q", captured.principal.SubjectID)
	}
	if len(captured.principal.Claims) != 2 {
		t.Errorf("decoded %d claims, want 2", len(captured.principal.Claims))
	}
}

func TestAuthMiddlewareInvalidSignature(t *testing.T) {
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, &accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})
	forged, _ := other.SignedString([]byte("wrong-secret"))

	captured := runAuthMiddleware(t, nil, "Bearer "+forged)
	if !captured.principal.Anonymous {
		t.Error("token with a bad signature must be treated as anonymous")
	}
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	captured := runAuthMiddleware(t, nil, "Basic dXNlcjpwYXNz")
	if !captured.principal.Anonymous {
		t.Error("non-bearer authorization must be treated as anonymous")
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &accessClaims{
		Roles: []string{"A31"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expired, _ := token.SignedString(testSecret)

	captured := runAuthMiddleware(t, nil, "Bearer "+expired)
	if !captured.principal.Anonymous {
		t.Error("expired token must be treated as anonymous")
	}
}

type captureObserver struct {
	subjectID string
	entries   []string
}

func (o *captureObserver) RecordMalformedClaims(ctx context.Context, subjectID string, entries []string) {
	o.subjectID = subjectID
	o.entries = entries
}

func TestAuthMiddlewareMalformedClaimsSkipped(t *testing.T) {
	observer := &captureObserver{}
	token := signToken(t, "user-1", []string{"A31", "bogus"})

	captured := runAuthMiddleware(t, observer, "Bearer "+token)

	if len(captured.principal.Claims) != 1 {
		t.Errorf("decoded %d claims, want 1 (malformed entry skipped)", len(captured.principal.Claims))
	}
	if captured.parseFailed {
		t.Error("parse did not fully fail; one claim decoded")
	}
	if observer.subjectID != "user-1" || len(observer.entries) != 1 || observer.entries[0] != "bogus" {
		t.Errorf("observer got (%q, %v)", observer.subjectID, observer.entries)
	}
}

func TestAuthMiddlewareAllClaimsMalformed(t *testing.T) {
	token := signToken(t, "user-1", []string{"bogus", "X1"})
	captured := runAuthMiddleware(t, nil, "Bearer "+token)

	if captured.principal.Anonymous {
		t.Error("the subject is still authenticated even when claims fail to decode")
	}
	if len(captured.principal.Claims) != 0 {
		t.Errorf("decoded %d claims, want 0", len(captured.principal.Claims))
	}
	if !captured.parseFailed {
		t.Error("expected the parse-failed flag so the guard consults the store")
	}
}

func TestJWTVerifierRejectsUnexpectedAlgorithm(t *testing.T) {
	// alg=none tokens must never verify.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	verifier := NewJWTVerifier(testSecret)
	if _, _, err := verifier.Verify(unsigned); err == nil {
		t.Error("expected verification failure for alg=none")
	}
}
