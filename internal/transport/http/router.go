package http

import (
	"net/http"
	"time"

	"github.com/foraling/foraling-server/internal/application/catalog"
	fileapp "github.com/foraling/foraling-server/internal/application/file"
	"github.com/foraling/foraling-server/internal/application/identity"
	"github.com/foraling/foraling-server/internal/application/otp"
	"github.com/foraling/foraling-server/internal/application/social"
	"github.com/foraling/foraling-server/internal/config"
	"github.com/foraling/foraling-server/internal/infrastructure/dynamo"
	jwtinfra "github.com/foraling/foraling-server/internal/infrastructure/jwt"
	"github.com/foraling/foraling-server/internal/infrastructure/mail"
	s3infra "github.com/foraling/foraling-server/internal/infrastructure/s3"
	"github.com/foraling/foraling-server/internal/transport/http/handler"
	appmiddleware "github.com/foraling/foraling-server/internal/transport/http/middleware"
	"github.com/foraling/foraling-server/internal/transport/ws"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo     *dynamo.UserRepo
	FavoriteRepo *dynamo.FavoriteRepo
	CommentRepo  *dynamo.CommentRepo
	FileRepo     *dynamo.FileRepo
	S3Store      *s3infra.Store
	Mailer       mail.Mailer
	JWTProvider  *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	otpSvc := otp.NewService(deps.UserRepo, deps.Mailer, cfg.OTPCooldownSeconds, time.Second)
	identitySvc := identity.NewService(deps.UserRepo, otpSvc)
	catalogSvc := catalog.NewService()
	socialSvc := social.NewService(deps.FavoriteRepo, deps.CommentRepo)
	fileSvc := fileapp.NewService(deps.S3Store, deps.FileRepo)

	var tokens ws.TokenIssuer
	if deps.JWTProvider != nil {
		tokens = deps.JWTProvider
	}
	gateway := ws.NewGateway(otpSvc, identitySvc, deps.UserRepo, tokens, cfg.AllowedOrigins)

	healthH := handler.NewHealthHandler()
	productH := handler.NewProductHandler(catalogSvc)
	fileH := handler.NewFileHandler(fileSvc)
	socialH := handler.NewSocialHandler(socialSvc)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/products", productH.List)
		r.Get("/files/{id}", fileH.Download)
		r.Get("/stores/{storeID}/comments", socialH.ListComments)
		r.With(sensitiveRL.Limit).Get("/ws", gateway.Handle)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Post("/files", fileH.Upload)
			r.Delete("/files/{id}", fileH.Delete)
			r.Get("/favorites", socialH.ListFavorites)
			r.Put("/favorites/{storeID}", socialH.ToggleFavorite)
			r.Post("/stores/{storeID}/comments", socialH.PostComment)
		})
	})

	return r
}
