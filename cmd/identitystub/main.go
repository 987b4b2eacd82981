// Command identitystub serves a fake instance-metadata token endpoint and
// records every request it sees as a JSON blob in a forensics container —
// upstream input for the log pipeline.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/logwarden/pkg/logger"
	"github.com/your-org/logwarden/pkg/storage/blobstore"
)

type stubConfig struct {
	Addr             string `env:"IDENTITYSTUB_ADDR" envDefault:":8080"`
	LogLevel         string `env:"IDENTITYSTUB_LOG_LEVEL" envDefault:"info"`
	ConnectionString string `env:"LOGWARDEN_STORAGE_CONNECTION_STRING"`
	Container        string `env:"IDENTITYSTUB_FORENSICS_CONTAINER" envDefault:"forensics-logs"`
	SecretHeader     string `env:"IDENTITYSTUB_SECRET" envDefault:"BACKUP-SECRET"`
}

type accessLog struct {
	Time       string              `json:"time"`
	RemoteAddr string              `json:"remote_addr"`
	Headers    map[string][]string `json:"headers"`
	Query      map[string][]string `json:"query"`
	Granted    bool                `json:"granted"`
}

type stub struct {
	cfg    stubConfig
	store  blobstore.Client // nil when no connection string is set
	logger *zap.Logger
}

func main() {
	cfg := stubConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse environment: %v", err)
	}

	logr, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := &stub{cfg: cfg, logger: logr}
	if cfg.ConnectionString != "" {
		storeCfg, err := blobstore.ParseConnectionString(cfg.ConnectionString)
		if err != nil {
			logr.Fatal("parse connection string", zap.Error(err))
		}
		client, err := blobstore.New(storeCfg)
		if err != nil {
			logr.Fatal("init blob store", zap.Error(err))
		}
		if err := client.EnsureContainer(ctx, cfg.Container); err != nil {
			logr.Fatal("ensure forensics container", zap.Error(err))
		}
		s.store = client
	} else {
		logr.Warn("no storage connection string; request logs go to the logger only")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metadata/identity/oauth2/token", s.handleToken)
	r.Post("/metadata/identity/oauth2/token", s.handleToken)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("identity stub starting", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func (s *stub) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleToken grants a fake bearer token when the caller looks like a
// legitimate metadata client (Metadata: true) or presents the shared secret.
// Either way the request is recorded for the pipeline to pick up.
func (s *stub) handleToken(w http.ResponseWriter, r *http.Request) {
	granted := r.Header.Get("Metadata") == "true" || r.Header.Get("secret") == s.cfg.SecretHeader

	s.record(r, granted)

	if !granted {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized - missing Metadata or secret header",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "FAKE_MI_TOKEN_" + uuid.NewString(),
		"expires_in":   3599,
		"token_type":   "Bearer",
	})
}

func (s *stub) record(r *http.Request, granted bool) {
	entry := accessLog{
		Time:       time.Now().UTC().Format(time.RFC3339),
		RemoteAddr: r.RemoteAddr,
		Headers:    r.Header,
		Query:      r.URL.Query(),
		Granted:    granted,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("marshal access log", zap.Error(err))
		return
	}

	if s.store == nil {
		s.logger.Info("token request", zap.ByteString("entry", payload))
		return
	}

	name := "imds-log-" + time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString() + ".json"
	if err := s.store.Put(r.Context(), s.cfg.Container, name, payload, "application/json"); err != nil {
		s.logger.Warn("upload access log", zap.String("blob", name), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
