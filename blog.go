package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"devblog/internal/apiclient"
	"devblog/internal/config"
	"devblog/internal/guard"
	"devblog/internal/logging"
	"devblog/internal/markdown"
	"devblog/internal/session"
	"devblog/internal/storage"
)

type Blog struct {
	cfg       *config.Config
	db        *sql.DB
	kv        *storage.SQLite
	sealer    *storage.Sealed
	api       *apiclient.Factory
	sessions  *session.Manager
	guard     *guard.Guard
	md        *markdown.Renderer
	templates *templateSet
	logger    logging.Logger
}

func NewBlog(cfg *config.Config, db *sql.DB, logger logging.Logger) (*Blog, error) {
	sealer, err := storage.NewSealed(storage.Noop{}, []byte(cfg.SessionSecret))
	if err != nil {
		return nil, fmt.Errorf("creating sealer: %w", err)
	}

	b := &Blog{
		cfg:    cfg,
		db:     db,
		kv:     storage.NewSQLite(db),
		sealer: sealer,
		api: &apiclient.Factory{
			BaseURL:     cfg.APIBaseURL,
			Timeout:     cfg.RequestTimeout,
			ReissuePath: cfg.ReissuePath,
		},
		md: markdown.New(
			markdown.WithImageBase(cfg.ImageBaseURL),
			markdown.WithCodeStyle(cfg.CodeStyle),
		),
		logger: logger,
	}

	var reissuer session.Reissuer = b.api
	if cfg.ReissueMode == config.ReissuePromote {
		reissuer = session.PromoteRefresh{}
	}
	b.sessions = session.NewManager(reissuer, session.WithLogger(logger))
	b.guard = b.newGuard()

	if b.templates, err = b.loadTemplates(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Blog) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(b.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(b.withVisitor)
	r.Use(b.guard.Middleware(b.authorizer))

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	// Public routes
	r.Get("/", b.Home)
	r.Get("/articles", b.Articles)
	r.Get("/article/{id}", b.Article)
	r.Get("/articles/{id}", b.Article)
	r.Get("/login", b.LoginForm)
	r.Post("/login", b.Login)
	r.Get("/oauth_handler", b.OAuthCallback)
	r.Post("/logout", b.Logout)
	r.Post("/theme", b.ToggleTheme)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   b.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", csrfHeaderName},
			AllowCredentials: true,
			MaxAge:           60 * 15,
		}))
		r.Get("/session", b.APISession)
		r.Post("/theme", b.APITheme)
	})

	// Protected routes, guarded above
	r.Get("/admin", b.AdminHome)
	r.Post("/admin/articles/{id}", b.AdminUpdate)
	r.Post("/admin/articles/{id}/delete", b.AdminDelete)
	r.Get("/admin/editor", b.Editor)
	r.Post("/admin/editor", b.EditorSubmit)
	r.Post("/admin/categories", b.CreateCategory)
	r.Get("/admin/uploader", b.Uploader)
	r.Post("/admin/uploader", b.Upload)

	r.NotFound(b.NotFound)
	return r
}

func (b *Blog) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		b.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// cleanupVisitors drops visitor state nobody touched within the TTL.
func (b *Blog) cleanupVisitors(ctx context.Context) error {
	n, err := b.kv.PurgeStale(ctx, time.Now().Add(-b.cfg.VisitorTTL))
	if err != nil {
		return err
	}
	if n > 0 {
		b.logger.Info(ctx, "purged stale visitor state", "rows", n)
	}
	return nil
}

func (b *Blog) runCleanup(ctx context.Context, every time.Duration) {
	if err := b.cleanupVisitors(ctx); err != nil {
		b.logger.Error(ctx, "cleaning up visitor state", "error", err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.cleanupVisitors(ctx); err != nil {
				b.logger.Error(ctx, "cleaning up visitor state", "error", err)
			}
		}
	}
}
