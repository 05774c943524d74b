// Package serverapp assembles the gateway, stores, auth and API handlers
// into one http.Handler.
package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/woodsmokeheart/tracker/internal/auth"
	"github.com/woodsmokeheart/tracker/internal/clock"
	"github.com/woodsmokeheart/tracker/internal/config"
	"github.com/woodsmokeheart/tracker/internal/gateway"
	"github.com/woodsmokeheart/tracker/internal/httpapi"
	"github.com/woodsmokeheart/tracker/internal/image"
	"github.com/woodsmokeheart/tracker/internal/notify"
	"github.com/woodsmokeheart/tracker/internal/objectstore"
	"github.com/woodsmokeheart/tracker/internal/productivity"
	"github.com/woodsmokeheart/tracker/internal/store"
)

type Options struct {
	Config *config.Config
	Logger *log.Logger
}

// Server owns the assembled handler and the resources behind it.
type Server struct {
	Handler http.Handler

	stores  *store.Manager
	gw      gateway.Gateway
	objects objectstore.Store
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	cfg := opts.Config
	logger := opts.Logger

	gw, err := buildGateway(cfg)
	if err != nil {
		return nil, err
	}

	objects, mediaDir, err := buildObjectStore(cfg)
	if err != nil {
		gw.Close()
		return nil, err
	}

	pipeline := image.NewPipeline(objects, image.Limits{
		MaxBytes:     cfg.Uploads.MaxBytes,
		MaxDimension: cfg.Uploads.MaxDimension,
		AllowedTypes: cfg.Uploads.AllowedTypes,
	})

	feed := notify.NewFeed()
	clk := clock.Real{}
	grace := time.Duration(cfg.Undo.GraceMS) * time.Millisecond

	stores := store.NewManager(func(owner string) *store.Store {
		return store.New(store.Options{
			Gateway:     gw,
			Owner:       owner,
			Clock:       clk,
			GraceWindow: grace,
			Logger:      logger,
			Aggregator:  productivity.New(gw, owner, clk),
			Notify: func(msg string) {
				feed.Push(owner, notify.LevelError, msg)
			},
		})
	})

	authService := auth.NewService(auth.ServiceOptions{
		Logger:     logger,
		CookieName: cfg.Auth.CookieName,
		CodeTTL:    time.Duration(cfg.Auth.CodeTTLMinutes) * time.Minute,
		SessionTTL: time.Duration(cfg.Auth.SessionTTLHours) * time.Hour,
	})
	// Sign-out tears down the user's store so no delete countdown can fire
	// against a dead session.
	authService.SetSignOutHook(stores.Drop)
	authHandler := auth.NewHandler(authService, cfg.Auth.DevExposeCode)

	apiHandler := httpapi.New(stores, pipeline, feed, gw, cfg.Uploads.MaxBytes, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(withAccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "tracker",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if _, err := gw.ListTasks(req.Context(), "readyz-probe"); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "record store unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "tracker",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.Post("/request-code", authHandler.RequestCode)
			a.Post("/verify", authHandler.Verify)
			a.Get("/session", authHandler.Session)
			a.Post("/logout", authHandler.Logout)
		})
		api.Group(func(p chi.Router) {
			p.Use(authService.RequireAPI)
			apiHandler.Register(p)
		})
	})

	if mediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	}

	return &Server{
		Handler: r,
		stores:  stores,
		gw:      gw,
		objects: objects,
	}, nil
}

// Close cancels outstanding delete countdowns and releases storage handles.
func (s *Server) Close() {
	s.stores.CloseAll()
	_ = s.objects.Close()
	_ = s.gw.Close()
}

func buildGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.Gateway.Driver {
	case "memory":
		return gateway.NewMemory(), nil
	case "sqlite":
		return gateway.NewSQLite(cfg.Gateway.SQLitePath)
	case "postgres":
		return gateway.NewPostgres(context.Background(), cfg.Gateway.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown gateway driver %q", cfg.Gateway.Driver)
}

func buildObjectStore(cfg *config.Config) (objectstore.Store, string, error) {
	switch cfg.Objects.Driver {
	case "disk":
		disk, err := objectstore.NewDisk(cfg.Objects.Dir, cfg.Objects.PublicBase)
		if err != nil {
			return nil, "", err
		}
		return disk, disk.Dir(), nil
	case "gcs":
		gcs, err := objectstore.NewGCS(context.Background(), cfg.Objects.GCS.Bucket, cfg.Objects.GCS.CredentialsFile)
		if err != nil {
			return nil, "", err
		}
		return gcs, "", nil
	}
	return nil, "", fmt.Errorf("unknown objects driver %q", cfg.Objects.Driver)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
