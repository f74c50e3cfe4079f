package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/platform/httpx"
	"github.com/taskroom/taskroom/internal/shared"
)

var errMissingBearer = errors.New("missing bearer token")

// Authenticator verifies bearer tokens issued by the authentication provider
// and stores the subject on the request context.
type Authenticator struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

// NewAuthenticator constructs an Authenticator. issuer may be empty to skip the iss check.
func NewAuthenticator(secret, issuer string, logger *slog.Logger) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("authn: secret must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, logger: logger}, nil
}

// Middleware rejects requests without a valid token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err))
			return
		}
		subject, err := a.Verify(raw)
		if err != nil {
			a.logger.Warn("reject bearer token", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.RespondError(w, fmt.Errorf("%w: invalid or expired token", shared.ErrUnauthenticated))
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithSubject(r.Context(), subject)))
	})
}

// Verify parses raw, checks the HMAC signature, expiry and issuer, and returns the subject.
func (a *Authenticator) Verify(raw string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, errors.New("token not valid")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return uuid.Nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil || subject == uuid.Nil {
		return uuid.Nil, fmt.Errorf("subject is not a principal id: %q", claims.Subject)
	}
	return subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingBearer
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", jwt.ErrTokenMalformed
	}
	return strings.TrimSpace(token), nil
}
