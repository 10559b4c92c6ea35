package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/identityhub/internal/accounts"
	"github.com/geocoder89/identityhub/internal/auth"
	"github.com/geocoder89/identityhub/internal/cache"
	apphttp "github.com/geocoder89/identityhub/internal/http"
	"github.com/geocoder89/identityhub/internal/http/handlers"
	"github.com/geocoder89/identityhub/internal/observability"
	"github.com/geocoder89/identityhub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key"

type store interface {
	accounts.IdentityStore
	handlers.Pinger
}

type testServer struct {
	router *gin.Engine
	tokens *auth.Manager
}

type routerOption func(*apphttp.RouterDeps)

func withStaticDir(dir string) routerOption {
	return func(d *apphttp.RouterDeps) { d.StaticDir = dir }
}

func newTestServer(t *testing.T, users store, opts ...routerOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	hasher, err := security.NewHasher(bcrypt.MinCost, 4, prom)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	tokens, err := auth.NewManager(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	svc := accounts.NewService(users, hasher, tokens,
		accounts.WithProfileCache(cache.NewProfiles(time.Minute)),
		accounts.WithObserver(prom),
	)

	deps := apphttp.RouterDeps{
		Env:          "test",
		Accounts:     svc,
		Tokens:       tokens,
		Prom:         prom,
		Registry:     reg,
		Ready:        []handlers.Pinger{users},
		MaxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testServer{router: apphttp.NewRouter(logger, deps), tokens: tokens}
}

// helpers

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func registerBody(username, email string) string {
	return `{"username":"` + username + `","email":"` + email + `","password":"pw123",` +
		`"fullName":"Alice Liddell","gender":"female","dateOfBirth":"1990-01-01","country":"UK"}`
}

func mustRegister(t *testing.T, router http.Handler, username, email string) string {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/users/register", registerBody(username, email), "")
	if w.Code != http.StatusOK {
		t.Fatalf("register got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	mustReadJSON(t, w, &resp)
	if resp.Token == "" {
		t.Fatalf("register returned an empty token")
	}
	return resp.Token
}

// withoutRequestID drops the per-request id so error bodies can be compared.
func withoutRequestID(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var resp errorResponse
	mustReadJSON(t, w, &resp)
	resp.Error.RequestID = ""
	return resp
}
