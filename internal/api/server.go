// Package api exposes the scan pipeline, entry store, audit trail, rule
// management and vault over HTTP.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/memshield/memshield/internal/access"
	"github.com/memshield/memshield/internal/audit"
	"github.com/memshield/memshield/internal/auth"
	"github.com/memshield/memshield/internal/classifier"
	"github.com/memshield/memshield/internal/config"
	"github.com/memshield/memshield/internal/guard"
	"github.com/memshield/memshield/internal/models"
	"github.com/memshield/memshield/internal/notifications"
	"github.com/memshield/memshield/internal/queue"
	"github.com/memshield/memshield/internal/rules"
	"github.com/memshield/memshield/internal/scheduler"
	"github.com/memshield/memshield/internal/store"
	"github.com/memshield/memshield/internal/vault"
)

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	store  *store.Store
	http   *http.Server
	logger *slog.Logger

	authService *auth.Service
	userStore   auth.UserStore

	rulesEngine *rules.Engine
	rulesStore  rules.Store

	auditLog   *audit.Log
	auditSink  audit.Sink
	accessCtrl *access.Controller
	vault      *vault.Vault

	queue     *queue.Queue
	scheduler *scheduler.Scheduler

	notificationService *notifications.Service

	// scanner is rebuilt whenever the custom rule set changes.
	scannerMu sync.RWMutex
	scanner   *guard.Scanner
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		store:  st,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.userStore = auth.NewPostgresUserStore(st.DB())
	s.authService = auth.NewService(auth.Config{
		JWTSecret:          cfg.Auth.JWTSecret,
		AccessTokenExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
	}, s.userStore)

	s.rulesStore = rules.NewPostgresStore(st.DB())
	s.rulesEngine = rules.NewEngine(s.rulesStore)

	s.auditLog = audit.NewLog(cfg.Guard.AuditLogCap)
	s.auditSink = audit.Fanout{s.auditLog, st.EventSink()}
	s.accessCtrl = access.NewController(s.auditSink, s.logger)

	keys, err := vaultKeys(cfg.Vault, s.logger)
	if err != nil {
		return nil, fmt.Errorf("initializing vault keys: %w", err)
	}
	s.vault, err = vault.New(keys, s.accessCtrl, s.auditSink, s.logger)
	if err != nil {
		return nil, fmt.Errorf("initializing vault: %w", err)
	}

	s.notificationService = notifications.NewService(notifications.Config{
		Slack: notifications.SlackConfig{
			WebhookURL:  cfg.Notifications.Slack.WebhookURL,
			Channel:     cfg.Notifications.Slack.Channel,
			Username:    "memshield",
			IconEmoji:   ":shield:",
			Enabled:     cfg.Notifications.Slack.Enabled,
			MinSeverity: cfg.Notifications.MinSeverity,
		},
		Email: notifications.EmailConfig{
			SMTPHost:    cfg.Notifications.Email.SMTPHost,
			SMTPPort:    cfg.Notifications.Email.SMTPPort,
			Username:    cfg.Notifications.Email.Username,
			Password:    cfg.Notifications.Email.Password,
			From:        cfg.Notifications.Email.From,
			To:          cfg.Notifications.Email.To,
			Enabled:     cfg.Notifications.Email.Enabled,
			MinSeverity: cfg.Notifications.MinSeverity,
		},
	}, s.logger)

	s.queue, err = queue.New(queue.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing queue: %w", err)
	}

	s.scheduler = scheduler.New(scheduler.Config{
		RetentionSweepSpec: cfg.Scheduler.RetentionSweepSpec,
		DailyDigestSpec:    cfg.Scheduler.DailyDigestSpec,
		RescanSpec:         cfg.Scheduler.RescanSpec,
		EventRetention:     cfg.Scheduler.EventRetention,
	}, st, s.queue, s.auditLog, s.notificationService, s.logger)

	s.rebuildScanner()

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

func vaultKeys(cfg config.VaultConfig, logger *slog.Logger) (map[models.Classification][]byte, error) {
	if len(cfg.Keys) == 0 {
		logger.Warn("no vault keys configured, generating ephemeral keys - encrypted data will not survive a restart")
		return vault.GenerateKeys()
	}

	keys := make(map[models.Classification][]byte, len(cfg.Keys))
	for level, encoded := range cfg.Keys {
		key, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding key for %s: %w", level, err)
		}
		keys[level] = key
	}
	return keys, nil
}

// rebuildScanner swaps in a scanner built from the current merged rule set.
func (s *Server) rebuildScanner() {
	c := classifier.NewWithRules(s.rulesEngine.MergedRules())
	scanner := guard.NewScanner(
		guard.WithClassifier(c),
		guard.WithAuditSink(s.auditSink),
		guard.WithLogger(s.logger),
	)

	s.scannerMu.Lock()
	s.scanner = scanner
	s.scannerMu.Unlock()
}

func (s *Server) currentScanner() *guard.Scanner {
	s.scannerMu.RLock()
	defer s.scannerMu.RUnlock()
	return s.scanner
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(s.corsMiddleware())
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowOrigin := s.cfg.Server.CORSAllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
		s.logger.Warn("CORS Allow-Origin set to '*' - configure server.cors_allow_origin in production")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authService.Middleware)

			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.getCurrentUser)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Get("/users", s.listUsers)
				r.Post("/users", s.createUser)
			})

			r.Post("/scan", s.scanContent)

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", s.listEntries)
				r.Post("/", s.createEntry)
				r.Get("/{entryID}", s.getEntry)
				r.With(auth.RequireRole(models.RoleAdmin)).Delete("/{entryID}", s.deleteEntry)
				r.Get("/{entryID}/scans", s.getEntryScans)
			})

			r.Route("/audit", func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin, models.RoleSecurityOfficer))
				r.Get("/events", s.listAuditEvents)
				r.Get("/report", s.getAuditReport)
			})

			r.Route("/rules", func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin, models.RoleSecurityOfficer))
				r.Get("/", s.listRules)
				r.Post("/", s.createRule)
				r.Post("/test", s.testRule)
				r.Get("/{ruleID}", s.getRule)
				r.Put("/{ruleID}", s.updateRule)
				r.Delete("/{ruleID}", s.deleteRule)
			})

			r.Route("/vault", func(r chi.Router) {
				r.Post("/encrypt", s.vaultEncrypt)
				r.Post("/decrypt", s.vaultDecrypt)
			})

			r.Route("/queue", func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin, models.RoleSecurityOfficer))
				r.Get("/stats", s.getQueueStats)
				r.Post("/rescan", s.triggerRescan)
			})

			r.With(auth.RequireRole(models.RoleAdmin, models.RoleSecurityOfficer)).
				Get("/reports/audit.pdf", s.getAuditReportPDF)
		})
	})
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.rulesEngine.LoadRules(ctx); err != nil {
		s.logger.Error("failed to load custom rules", "error", err)
	} else {
		s.rebuildScanner()
	}

	if err := s.scheduler.Start(); err != nil {
		s.logger.Error("failed to start scheduler", "error", err)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *apiMeta    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMeta struct {
	Total  int `json:"total,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondJSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *apiMeta) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "db_unavailable", "Database not available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
