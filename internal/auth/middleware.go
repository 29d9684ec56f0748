package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Middleware verifies bearer tokens issued by the identity service and
// stores the resulting Caller on the request context. When roles are given,
// callers with any other role are rejected with 403.
func Middleware(secret string, logger *slog.Logger, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := ParseBearer(r.Header.Get("Authorization"), secret)
			if err != nil {
				logger.Debug("token rejected", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if len(roles) > 0 && !slices.Contains(roles, caller.Role) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func ParseBearer(header, secret string) (Caller, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return Caller{}, errMissingToken
	}

	parts := strings.Split(raw, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Caller{}, errInvalidFormat
	}

	var c claims
	token, err := jwt.ParseWithClaims(parts[1], &c, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Caller{}, errInvalidToken
	}

	if strings.TrimSpace(c.Subject) == "" {
		return Caller{}, errMissingSubject
	}

	role := Role(c.Role)
	switch role {
	case RoleCustomer, RoleSeller, RoleAdmin:
	default:
		return Caller{}, errUnknownRole
	}

	return Caller{ID: c.Subject, Role: role}, nil
}

// IssueToken signs a token for the given caller. The identity service owns
// issuance in production; this exists for tooling and tests.
func IssueToken(c Caller, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role:             string(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{Subject: c.ID},
	})
	return token.SignedString([]byte(secret))
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingToken   authError = "missing token"
	errInvalidFormat  authError = "invalid token format"
	errInvalidToken   authError = "invalid token"
	errMissingSubject authError = "subject claim missing"
	errUnknownRole    authError = "unknown role claim"
)

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
