package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maestro/internal/applications"
	"maestro/internal/config"
	"maestro/internal/db"
	"maestro/internal/identity"
	mcpserver "maestro/internal/mcp"
	"maestro/internal/recordstore"

	"github.com/mark3labs/mcp-go/server"
)

//go:embed static
var staticFS embed.FS

func main() {
	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// Context for startup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Record store
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open record store: %v", err)
	}
	defer store.close()

	// Wire dependencies
	svc := applications.NewService(store.src, cfg.Flow, logger)

	opts := identity.SessionOptions{
		TTL:          cfg.SessionTTL,
		SyncInterval: cfg.SyncInterval,
		SecureCookie: cfg.SecureCookies,
		Anonymous:    cfg.Anonymous(),
	}
	var auth applications.Authenticator
	if !cfg.Anonymous() {
		client := identity.NewClient(cfg.IdentityURL, cfg.IdentityAPIKey, cfg.HTTPTimeout)
		auth, opts.Refresher = client, client
		logger.Info("using identity provider", "url", cfg.IdentityURL)
	} else {
		logger.Warn("no IDENTITY_URL set, running in single-user mode")
	}
	sessions := identity.NewSessions(opts, logger)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.Run(sweepCtx, cfg.SessionSweep)

	handler := applications.NewHandler(svc, sessions, auth, store.linker, logger)

	// Create MCP server
	mcpSrv := mcpserver.NewServer(svc)

	// HTTP router
	mux := http.NewServeMux()
	protect := func(fn http.HandlerFunc) http.Handler { return sessions.Require(fn) }

	// Static files
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to get static fs: %v", err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))

	// REST API endpoints
	mux.Handle("GET /api/applications", protect(handler.ListApplications))
	mux.Handle("POST /api/applications", protect(handler.CreateApplication))
	mux.Handle("GET /api/stats", protect(handler.Stats))
	mux.Handle("GET /api/flow", protect(handler.Flow))
	mux.Handle("POST /api/sync", protect(handler.Sync))

	// Auth pages
	mux.HandleFunc("GET /{$}", handler.LandingPage)
	mux.HandleFunc("GET /login", handler.LoginPage)
	mux.HandleFunc("POST /login", handler.Login)
	mux.HandleFunc("GET /signup", handler.SignupPage)
	mux.HandleFunc("POST /signup", handler.Signup)
	mux.HandleFunc("POST /logout", handler.Logout)

	// HTMX Web UI
	mux.Handle("GET /dashboard", protect(handler.DashboardPage))
	mux.Handle("GET /dashboard/applications", protect(handler.ApplicationsPage))
	mux.Handle("GET /dashboard/applications/new", protect(handler.NewApplicationPage))
	mux.Handle("POST /dashboard/applications", protect(handler.SubmitApplication))
	mux.Handle("GET /dashboard/connect", protect(handler.Connect))
	mux.Handle("POST /dashboard/sync", protect(handler.SyncForm))
	mux.Handle("POST /dashboard/disconnect", protect(handler.Disconnect))
	mux.Handle("GET /fragments/applications", protect(handler.ApplicationsFragment))

	// MCP endpoint (HTTP transport)
	// MCP uses POST for requests and GET for SSE streams
	mcpHTTP := sessions.Require(server.NewStreamableHTTPServer(mcpSrv))
	mux.Handle("POST /mcp", mcpHTTP)
	mux.Handle("GET /mcp", mcpHTTP)
	mux.Handle("DELETE /mcp", mcpHTTP)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      requestLogger(logger, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Port, "store", cfg.RecordStore)
	logger.Info("endpoints available",
		"web", "http://localhost:"+cfg.Port,
		"api", "http://localhost:"+cfg.Port+"/api",
		"mcp", "http://localhost:"+cfg.Port+"/mcp",
	)

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	logger.Info("server stopped")
}

type recordStore struct {
	src    applications.Source
	linker applications.MailLinker
	close  func()
}

// openStore connects the configured record store backend
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*recordStore, error) {
	switch cfg.RecordStore {
	case config.StoreMongo:
		logger.Info("connecting to MongoDB", "uri", cfg.MongoURI)
		database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		mongoStore := recordstore.NewMongoStore(database.DB)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to ensure indexes", "error", err)
		}
		if n, err := mongoStore.Count(ctx); err == nil {
			logger.Info("connected to MongoDB", "applications", n)
		}
		return &recordStore{
			src: mongoStore,
			close: func() {
				if err := database.Close(context.Background()); err != nil {
					logger.Warn("mongo disconnect failed", "error", err)
				}
			},
		}, nil

	case config.StoreSQLite:
		logger.Info("opening SQLite", "path", cfg.SQLitePath)
		sqlDB, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sqliteStore := recordstore.NewSQLiteStore(sqlDB)
		if err := sqliteStore.Migrate(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
		return &recordStore{
			src:   sqliteStore,
			close: func() { sqlDB.Close() },
		}, nil

	case config.StoreAPI:
		client := recordstore.NewAPIClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger)
		if err := client.Ping(ctx); err != nil {
			logger.Warn("record store API not reachable yet", "url", cfg.APIBaseURL, "error", err)
		}
		return &recordStore{src: client, linker: client, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown record store %q", cfg.RecordStore)
}
