//	@title			Mapforge Assets API
//	@version		1.0
//	@description	Asset-management backend: access-gated image CRUD with presigned and HMAC-signed delivery URLs.
//
//	@host		localhost:5184
//	@BasePath	/api/v1

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/go-pkgz/lgr"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/mapforge/assets/internal/auth"
	"github.com/mapforge/assets/internal/config"
	"github.com/mapforge/assets/internal/db"
	"github.com/mapforge/assets/internal/image"
	appMiddleware "github.com/mapforge/assets/internal/middleware"
	"github.com/mapforge/assets/internal/permission"
	"github.com/mapforge/assets/internal/signing"
	"github.com/mapforge/assets/internal/storage"

	_ "github.com/mapforge/assets/docs/swagger"
)

func main() {
	cfg := config.Load()
	setupLogs(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[ERROR] invalid configuration: %v", err)
	}

	pool, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[ERROR] database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("[ERROR] database migration failed: %v", err)
	}

	store, err := storage.NewMinioStorage(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.StorageBucket,
		cfg.StorageUseSSL,
	)
	if err != nil {
		log.Fatalf("[ERROR] object storage init failed: %v", err)
	}

	issuer, err := signing.NewIssuer(cfg.ThumbnailSecret, cfg.ThumbnailServiceURL, store, cfg.PresignExpiry)
	if err != nil {
		log.Fatalf("[ERROR] signed url issuer init failed: %v", err)
	}

	// Wire dependencies: repository → service → handler
	authClient := &http.Client{Timeout: 10 * time.Second}
	gateway := auth.NewGateway(authClient, cfg.AuthServiceURL)
	policy := auth.NewPolicyClient(authClient, cfg.AuthServiceURL)
	resolver := permission.NewResolver(permission.NewRepository(pool))
	gate := appMiddleware.NewAccessGate(gateway, policy, resolver)

	imageSvc := image.NewService(image.NewRepository(pool), store, issuer)
	imageHandler := image.NewHandler(imageSvc, gate)

	r := newRouter(cfg, gate, imageHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[INFO] server listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[ERROR] server error: %v", err)
		}
	}()

	<-quit
	log.Printf("[INFO] shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("[ERROR] forced shutdown: %v", err)
	}

	log.Printf("[INFO] server stopped")
}

// newRouter assembles the HTTP surface. CORS is layered per sub-router, never
// on the root: go-chi/cors answers preflights itself without calling next, so
// a root-level editor policy would swallow the extension route's preflights
// before its open policy could run. Each sub-router owns its own policy.
func newRouter(cfg *config.Config, gate *appMiddleware.AccessGate, imageHandler *image.Handler) http.Handler {
	editorCORS := cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.EditorClientOrigin},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI — available at http://localhost:5184/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1 — each route binds its logical action at registration time
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/assets", func(r chi.Router) {
			r.Use(editorCORS)
			r.With(gate.Require(auth.ActionRead, "image_id")).
				Get("/{project_id}/{image_type}/{image_id}", imageHandler.DeliveryURL)
		})

		r.Route("/upload", func(r chi.Router) {
			r.Use(editorCORS)
			r.With(gate.Require(auth.ActionUpload, "project_id")).
				Post("/{project_id}/{image_type}", imageHandler.Upload)
		})

		r.Route("/images", func(r chi.Router) {
			r.Use(editorCORS)
			r.With(gate.Require(auth.ActionUpdate, "id")).Post("/{id}", imageHandler.Update)
			r.With(gate.Require(auth.ActionDelete, "id")).Delete("/{id}", imageHandler.Delete)
			r.With(gate.Authenticate(auth.ActionDelete)).Delete("/", imageHandler.BulkDelete)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Use(editorCORS)
			r.With(gate.Require(auth.ActionDelete, "project_id")).
				Delete("/{project_id}/images", imageHandler.PurgeProject)
		})

		// browser-extension upload authenticates with an api key, not cookies,
		// and accepts requests from any origin
		r.Route("/extension", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"POST", "OPTIONS"},
				AllowedHeaders: []string{"x-api-key", "Content-Type"},
			}))
			r.Post("/upload", imageHandler.ExtensionUpload)
		})
	})

	return r
}

func setupLogs(debug bool) {
	if debug {
		log.Setup(log.Debug, log.CallerFile, log.CallerFunc, log.Msec, log.LevelBraces)
		return
	}
	log.Setup(log.Msec, log.LevelBraces)
}
