package http

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/geocoder89/identityhub/internal/http/handlers"
	"github.com/geocoder89/identityhub/internal/http/middlewares"
	"github.com/geocoder89/identityhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "identityhub-api"

type RouterDeps struct {
	Env      string
	Accounts handlers.Accounts
	Tokens   middlewares.TokenVerifier

	// optional
	Prom     *observability.Prom
	Registry *prometheus.Registry
	Ready    []handlers.Pinger

	CORSOrigins  []string
	MaxBodyBytes int64
	StaticDir    string
}

func NewRouter(log *slog.Logger, deps RouterDeps) *gin.Engine {
	if deps.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(middlewares.Recovery(log))
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(serviceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(deps.CORSOrigins))
	if deps.MaxBodyBytes > 0 {
		r.Use(middlewares.MaxBodyBytes(deps.MaxBodyBytes))
	}

	// health
	h := handlers.NewHealthHandler(deps.Ready...)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	// users
	usersHandler := handlers.NewUsersHandler(deps.Accounts, log)

	var authObs middlewares.AuthObserver
	if deps.Prom != nil {
		authObs = deps.Prom
	}
	authMW := middlewares.NewAuthMiddleware(deps.Tokens, authObs, log)

	users := r.Group("/api/users")
	{
		users.POST("/register", middlewares.RequireJSON(), usersHandler.Register)
		users.POST("/login", middlewares.RequireJSON(), usersHandler.Login)
		users.GET("/search/:query", authMW.RequireAuth(), usersHandler.Search)
	}

	r.NoRoute(staticFallback(deps.StaticDir))

	return r
}

// staticFallback serves files under dir for GET and HEAD requests no route
// matched. Everything else, including directories, gets the JSON 404.
func staticFallback(dir string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		method := ctx.Request.Method

		if dir != "" && (method == http.MethodGet || method == http.MethodHead) {
			rel := path.Clean("/" + ctx.Request.URL.Path)
			if rel == "/" {
				rel = "/index.html"
			}

			full := filepath.Join(dir, filepath.FromSlash(rel))

			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				ctx.File(full)
				return
			}
		}

		handlers.RespondNotFound(ctx, "Route not found")
	}
}
