package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/asyncview/internal/api/shared"
	"github.com/phrazzld/asyncview/internal/platform/logger"
	"github.com/phrazzld/asyncview/internal/redact"
	"github.com/phrazzld/asyncview/internal/service/auth"
)

// DefaultTokenCookie is the token cookie name used by default configuration.
const DefaultTokenCookie = "asyncview_token"

// AuthMiddleware resolves the request principal from a bearer token, taken
// from the Authorization header or, failing that, from a token cookie.
type AuthMiddleware struct {
	jwtService auth.JWTService
	cookieName string
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
// An empty cookieName disables the cookie fallback.
func NewAuthMiddleware(jwtService auth.JWTService, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		cookieName: cookieName,
	}
}

// Authenticate adds the principal of a valid token to the request context.
// Requests carrying neither header nor cookie pass through as anonymous; a
// credential that is present but invalid is rejected with 401. The cookie
// lets same-origin polls from the loading page act as the submitter.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found, err := m.token(r)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}
		if !found {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrWrongTokenType):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				logger.FromContextOrDefault(r.Context(), slog.Default()).
					Error("failed to validate token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := shared.WithPrincipal(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errMalformedAuthorization = errors.New("malformed authorization header")

// token extracts the raw token. The header wins over the cookie.
func (m *AuthMiddleware) token(r *http.Request) (string, bool, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false, errMalformedAuthorization
		}
		return parts[1], true, nil
	}
	if m.cookieName == "" {
		return "", false, nil
	}
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", false, nil
	}
	return c.Value, true, nil
}
