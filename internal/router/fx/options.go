package fx

import (
	"net/http"
	"slices"
	"time"

	"douyin-image-miner/config"
	"douyin-image-miner/internal/router"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var CoreRouterOptions = fx.Options(
	fx.Provide(NewMux),
)

// devOrigins are always allowed in development and test so a local UI can
// call the API without extra configuration.
var devOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

type muxParams struct {
	fx.In

	Cfg      *config.Config
	Logger   *zap.SugaredLogger
	Handlers []router.Handler `group:"handlers"`
}

func NewMux(p muxParams) *chi.Mux {
	r := chi.NewRouter()

	corsOpts, corsEnabled := corsOptions(p.Cfg)
	if corsEnabled {
		r.Use(cors.Handler(corsOpts))
		p.Logger.Infow("http_cors_enabled", "origins", corsOpts.AllowedOrigins)
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapRequestLogger(p.Logger))

	for _, h := range p.Handlers {
		h.RegisterRoute(r)
	}

	return r
}

// corsOptions allows CORS_ALLOWED_ORIGINS, plus the local dev origins outside
// production. The API only serves GET and POST.
func corsOptions(cfg *config.Config) (cors.Options, bool) {
	if cfg == nil {
		return cors.Options{}, false
	}
	origins := slices.Clone(cfg.CORSAllowedOrigins)
	if cfg.ENV == config.Dev || cfg.ENV == config.Test {
		for _, o := range devOrigins {
			if !slices.Contains(origins, o) {
				origins = append(origins, o)
			}
		}
	}
	if len(origins) == 0 {
		return cors.Options{}, false
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}, true
}

func zapRequestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Infow("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
