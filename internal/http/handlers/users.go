package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/identityhub/internal/domain/user"
	"github.com/geocoder89/identityhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type Accounts interface {
	Register(ctx context.Context, req user.RegisterRequest) (user.TokenResponse, error)
	Login(ctx context.Context, req user.LoginRequest) (user.TokenResponse, error)
	Search(ctx context.Context, query string) (user.PublicProfile, error)
}

type UsersHandler struct {
	accounts Accounts
	log      *slog.Logger
	timeout  time.Duration
}

func NewUsersHandler(accounts Accounts, log *slog.Logger) *UsersHandler {
	if log == nil {
		log = slog.Default()
	}

	return &UsersHandler{
		accounts: accounts,
		log:      log,
		// covers the store round trips plus waiting for a hashing slot
		timeout: 5 * time.Second,
	}
}

func (h *UsersHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	resp, err := h.accounts.Register(cctx, req)

	if err != nil {
		if errors.Is(err, user.ErrDuplicateUser) {
			RespondUserExists(ctx)
			return
		}

		if errors.Is(err, user.ErrPasswordTooLong) {
			RespondBadRequest(ctx, "Invalid request body", passwordTooLongDetails())
			return
		}

		h.internal(ctx, "register failed", err)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

func (h *UsersHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	resp, err := h.accounts.Login(cctx, req)

	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			RespondInvalidCredentials(ctx)
			return
		}

		h.internal(ctx, "login failed", err)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// Search must be mounted behind AuthMiddleware.RequireAuth.
func (h *UsersHandler) Search(ctx *gin.Context) {
	query := ctx.Param("query")

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	profile, err := h.accounts.Search(cctx, query)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		h.internal(ctx, "search failed", err)
		return
	}

	h.log.DebugContext(ctx.Request.Context(), "profile lookup", "profile_id", profile.ID)

	ctx.JSON(http.StatusOK, profile)
}

func (h *UsersHandler) internal(ctx *gin.Context, msg string, err error) {
	h.log.ErrorContext(ctx.Request.Context(), msg,
		"err", err,
		"route", ctx.FullPath(),
		"request_id", ctx.GetString(middlewares.CtxRequestID),
	)
	RespondInternal(ctx)
}
