package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/identityhub/internal/domain/user"
	"github.com/geocoder89/identityhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type fakeAccounts struct {
	registerFn func(ctx context.Context, req user.RegisterRequest) (user.TokenResponse, error)
	loginFn    func(ctx context.Context, req user.LoginRequest) (user.TokenResponse, error)
	searchFn   func(ctx context.Context, query string) (user.PublicProfile, error)
}

func (f *fakeAccounts) Register(ctx context.Context, req user.RegisterRequest) (user.TokenResponse, error) {
	return f.registerFn(ctx, req)
}

func (f *fakeAccounts) Login(ctx context.Context, req user.LoginRequest) (user.TokenResponse, error) {
	return f.loginFn(ctx, req)
}

func (f *fakeAccounts) Search(ctx context.Context, query string) (user.PublicProfile, error) {
	return f.searchFn(ctx, query)
}

func usersRouter(f *fakeAccounts) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewUsersHandler(f, nil)
	r := gin.New()
	r.POST("/api/users/register", h.Register)
	r.POST("/api/users/login", h.Login)
	r.GET("/api/users/search/:query", h.Search)
	return r
}

const validRegister = `{"username":"alice","email":"a@x.com","password":"pw123","fullName":"Alice","gender":"female","dateOfBirth":"1990-01-01","country":"UK"}`

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v body=%s", err, w.Body.String())
	}
	return resp.Error.Code
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"duplicate", user.ErrDuplicateUser, http.StatusBadRequest, "user_exists"},
		{"password too long", user.ErrPasswordTooLong, http.StatusBadRequest, "invalid_request"},
		{"store down", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got user.RegisterRequest
			f := &fakeAccounts{registerFn: func(ctx context.Context, req user.RegisterRequest) (user.TokenResponse, error) {
				if _, ok := ctx.Deadline(); !ok {
					t.Fatalf("expected a request deadline")
				}
				got = req
				if tt.err != nil {
					return user.TokenResponse{}, tt.err
				}
				return user.TokenResponse{Token: "tok"}, nil
			}}

			w := doJSON(usersRouter(f), http.MethodPost, "/api/users/register", validRegister)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if got.Username != "alice" || got.DateOfBirth != "1990-01-01" {
				t.Fatalf("request not passed through: %+v", got)
			}
			if tt.wantCode != "" {
				if code := errorCode(t, w); code != tt.wantCode {
					t.Fatalf("code: got %q want %q", code, tt.wantCode)
				}
				if strings.Contains(w.Body.String(), "connection refused") {
					t.Fatalf("internal error leaked: %s", w.Body.String())
				}
				return
			}
			if w.Body.String() != `{"token":"tok"}` {
				t.Fatalf("unexpected body: %s", w.Body.String())
			}
		})
	}
}

func TestRegisterHandler_InvalidBodySkipsService(t *testing.T) {
	f := &fakeAccounts{registerFn: func(context.Context, user.RegisterRequest) (user.TokenResponse, error) {
		t.Fatalf("service must not be called for an invalid body")
		return user.TokenResponse{}, nil
	}}

	w := doJSON(usersRouter(f), http.MethodPost, "/api/users/register", `{"username":"alice"}`)

	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_request" {
		t.Fatalf("got status %d body=%s", w.Code, w.Body.String())
	}
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"ok", `{"username":"alice","password":"pw123"}`, nil, http.StatusOK, ""},
		{"bad credentials", `{"username":"alice","password":"nope"}`, user.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials"},
		{"missing password", `{"username":"alice"}`, nil, http.StatusBadRequest, "invalid_request"},
		{"store down", `{"username":"alice","password":"pw123"}`, errors.New("timeout"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAccounts{loginFn: func(ctx context.Context, req user.LoginRequest) (user.TokenResponse, error) {
				if tt.err != nil {
					return user.TokenResponse{}, tt.err
				}
				return user.TokenResponse{Token: "tok-" + req.Username}, nil
			}}

			w := doJSON(usersRouter(f), http.MethodPost, "/api/users/login", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, w); code != tt.wantCode {
					t.Fatalf("code: got %q want %q", code, tt.wantCode)
				}
				return
			}
			if w.Body.String() != `{"token":"tok-alice"}` {
				t.Fatalf("unexpected body: %s", w.Body.String())
			}
		})
	}
}

func TestSearchHandler(t *testing.T) {
	profile := user.PublicProfile{
		ID:          "id-1",
		Username:    "alice",
		Email:       "a@x.com",
		FullName:    "Alice",
		Gender:      "female",
		DateOfBirth: "1990-01-01",
		Country:     "UK",
	}

	f := &fakeAccounts{searchFn: func(ctx context.Context, query string) (user.PublicProfile, error) {
		if query == "a@x.com" || query == "alice" {
			return profile, nil
		}
		if query == "broken" {
			return user.PublicProfile{}, errors.New("boom")
		}
		return user.PublicProfile{}, user.ErrNotFound
	}}
	r := usersRouter(f)

	w := doJSON(r, http.MethodGet, "/api/users/search/a@x.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d body=%s", w.Code, w.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["username"] != "alice" || got["id"] != "id-1" {
		t.Fatalf("unexpected profile: %v", got)
	}
	for k := range got {
		if strings.Contains(strings.ToLower(k), "password") {
			t.Fatalf("profile exposes %q", k)
		}
	}

	w = doJSON(r, http.MethodGet, "/api/users/search/nobody", "")
	if w.Code != http.StatusNotFound || errorCode(t, w) != "not_found" {
		t.Fatalf("got status %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodGet, "/api/users/search/broken", "")
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("got status %d body=%s", w.Code, w.Body.String())
	}
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		deps      []handlers.Pinger
		wantReady int
	}{
		{"no deps", nil, http.StatusOK},
		{"healthy", []handlers.Pinger{fakePinger{}}, http.StatusOK},
		{"store down", []handlers.Pinger{fakePinger{}, fakePinger{err: errors.New("down")}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(tt.deps...)
			r := gin.New()
			r.GET("/healthz", h.Healthz)
			r.GET("/readyz", h.Readyz)

			w := doJSON(r, http.MethodGet, "/healthz", "")
			if w.Code != http.StatusOK {
				t.Fatalf("healthz: got %d", w.Code)
			}

			w = doJSON(r, http.MethodGet, "/readyz", "")
			if w.Code != tt.wantReady {
				t.Fatalf("readyz: got %d want %d", w.Code, tt.wantReady)
			}
		})
	}
}
