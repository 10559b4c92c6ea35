package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/identityhub/internal/actorctx"
	"github.com/geocoder89/identityhub/internal/auth"
	"github.com/gin-gonic/gin"
)

const TokenHeader = "x-auth-token"

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthObserver counts gate outcomes; the reason for a rejection is only
// visible server-side.
type AuthObserver interface {
	ObserveAuth(flow, result string)
}

type AuthMiddleware struct {
	tokens TokenVerifier
	obs    AuthObserver
	log    *slog.Logger
}

func NewAuthMiddleware(tokens TokenVerifier, obs AuthObserver, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &AuthMiddleware{tokens: tokens, obs: obs, log: log}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(TokenHeader))
		if raw == "" {
			m.observe("missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":      "no_token",
					"message":   "No token, authorization denied.",
					"requestId": c.GetString(CtxRequestID),
				},
			})
			return
		}

		claims, err := m.tokens.Verify(raw)
		if err != nil {
			m.observe(rejectReason(err))
			m.log.DebugContext(c.Request.Context(), "token rejected", "reason", err.Error(), "request_id", c.GetString(CtxRequestID))

			// malformed, bad signature and expired all look the same to the caller
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":      "invalid_token",
					"message":   "Token is not valid.",
					"requestId": c.GetString(CtxRequestID),
				},
			})
			return
		}

		m.observe("ok")

		// handlers and the logger read the user from the request context
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.User.ID))

		c.Next()
	}
}

func (m *AuthMiddleware) observe(result string) {
	if m.obs != nil {
		m.obs.ObserveAuth("gate", result)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrBadSignature):
		return "bad_signature"
	default:
		return "malformed"
	}
}
