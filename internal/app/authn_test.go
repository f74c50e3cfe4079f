package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskroom/taskroom/internal/shared"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(subject uuid.UUID) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject.String(),
		Issuer:    "taskroom-auth",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func serveAuthn(t *testing.T, header string) (*httptest.ResponseRecorder, uuid.UUID) {
	t.Helper()
	authn, err := NewAuthenticator(testSecret, "taskroom-auth", nil)
	require.NoError(t, err)
	var seen uuid.UUID
	h := authn.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/account", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthnAcceptsValidToken(t *testing.T) {
	subject := uuid.New()
	rec, seen := serveAuthn(t, "Bearer "+signToken(t, testSecret, validClaims(subject)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, subject, seen)
}

func TestAuthnRejects(t *testing.T) {
	subject := uuid.New()
	expired := validClaims(subject)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	foreign := validClaims(subject)
	foreign.Issuer = "someone-else"
	notAnID := validClaims(subject)
	notAnID.Subject = "42"

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic " + signToken(t, testSecret, validClaims(subject)),
		"bad signature":  "Bearer " + signToken(t, "other-secret", validClaims(subject)),
		"expired":        "Bearer " + signToken(t, testSecret, expired),
		"wrong issuer":   "Bearer " + signToken(t, testSecret, foreign),
		"subject not id": "Bearer " + signToken(t, testSecret, notAnID),
		"garbage":        "Bearer not-a-token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, seen := serveAuthn(t, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, uuid.Nil, seen)
		})
	}
}

func TestAuthnRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(uuid.New())).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	rec, _ := serveAuthn(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator("", "", nil)
	require.Error(t, err)
}
