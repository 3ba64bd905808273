package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("missing bearer token")

type subjectKey struct{}

// IssueToken signs an HS256 token for subject, valid for ttl. It is used by
// operators and billing hooks to call the authenticated endpoints.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// verifyToken validates an HS256 token and returns its subject.
func verifyToken(secret, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// requireAuth wraps next with bearer token checks. Without a secret every
// request is refused, so the endpoints stay closed unless configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jwtSecret == "" {
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Authentication is not configured"))
			return
		}
		raw, err := bearerToken(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="focuspipe"`)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing bearer token"))
			return
		}
		subject, err := verifyToken(s.jwtSecret, raw)
		if err != nil {
			slog.Warn("Server.requireAuth: token rejected", "error", err, "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error(fmt.Sprintf("Invalid token: %v", err)))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
	}
}

// callerSubject returns the token subject of an authenticated request.
func callerSubject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
