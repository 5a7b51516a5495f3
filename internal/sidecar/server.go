// Package sidecar implements the persistent, single-writer localhost HTTP
// server a desktop shell spawns and drives (spec.md §4.8/§5/§6): chi
// router, portfile-based single-instance discovery, token auth, and an
// in-memory async job manager.
//
// Grounded on the teacher's internal/server (router/middleware/lifecycle
// shape, respondJSON/respondError pattern) and geraldfingburke-dossier's
// server/cmd/main.go for the go-chi/cors wiring the teacher itself does
// not need (it has no browser-facing CORS surface).
package sidecar

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/config"
	"github.com/hyperjump/agrafes/internal/storage"
)

// Server is the sidecar HTTP server.
type Server struct {
	store   *storage.Store
	cfg     *config.Config
	logger  *zap.Logger
	jobs    *JobManager
	token   string
	dbPath  string

	httpServer *http.Server
	watcher    *portfileWatcher
	listener   net.Listener

	cancel context.CancelFunc
}

// NewServer wires a Server over an already-open store. dbPath is the path
// the store was opened with, used to derive the portfile location.
func NewServer(store *storage.Store, cfg *config.Config, logger *zap.Logger, dbPath string) (*Server, error) {
	token, err := resolveToken(TokenMode(cfg.Server.TokenMode), cfg.Server.Token)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:  store,
		cfg:    cfg,
		logger: logger,
		jobs:   NewJobManager(ctx, logger, filepath.Dir(dbPath)),
		token:  token,
		dbPath: dbPath,
		cancel: cancel,
	}, nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", tokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Get("/diagnostics", s.handleDiagnostics)

	r.Post("/query", s.handleQuery)
	r.Post("/validate-meta", s.handleValidateMeta)
	r.Post("/curate/preview", s.handleCuratePreview)
	r.Post("/align/audit", s.handleAlignAudit)
	r.Post("/align/quality", s.handleAlignQuality)
	r.Get("/documents", s.handleListDocuments)
	r.Get("/doc_relations", s.handleListDocRelations)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireToken)
		pr.Post("/index", s.handleIndex)
		pr.Post("/import", s.handleImport)
		pr.Post("/curate", s.handleCurate)
		pr.Post("/segment", s.handleSegment)
		pr.Post("/align", s.handleAlign)
		pr.Post("/align/link/update_status", s.handleAlignLinkUpdateStatus)
		pr.Post("/align/link/delete", s.handleAlignLinkDelete)
		pr.Post("/align/link/retarget", s.handleAlignLinkRetarget)
		pr.Post("/documents/update", s.handleUpdateDocument)
		pr.Post("/documents/bulk_update", s.handleBulkUpdateDocuments)
		pr.Post("/doc_relations/set", s.handleSetDocRelation)
		pr.Post("/doc_relations/delete", s.handleDeleteDocRelation)
		pr.Post("/export/tei", s.handleExportTEI)
		pr.Post("/export/align_csv", s.handleExportAlignCSV)
		pr.Post("/export/run_report", s.handleExportRunReport)
		pr.Post("/jobs/enqueue", s.handleEnqueueJob)
		pr.Post("/jobs/{id}/cancel", s.handleCancelJob)
		pr.Post("/shutdown", s.handleShutdown)
	})

	return r
}

// requireToken enforces the X-Agrafes-Token header on write endpoints when
// auth is enabled (resolveToken returns "" for TokenModeOff).
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !tokensMatch(s.token, r.Header.Get(tokenHeader)) {
			s.respondErr(w, apierr.Unauthorized("missing or invalid %s header", tokenHeader))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartInfo is the JSON payload returned/logged at startup, carrying the
// auto-generated token (if any) the shell must echo back on write calls.
type StartInfo struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	PID   int    `json:"pid"`
	Token string `json:"token,omitempty"`
}

// Start binds the configured host/port (port 0 picks an OS-assigned port),
// writes the portfile, starts the portfile-deletion watcher, and begins
// serving in the background. It returns immediately with the bound
// host/port/token; call Wait or Stop to block/terminate.
func (s *Server) Start() (*StartInfo, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind sidecar listener: %w", err)
	}
	s.listener = ln
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return nil, fmt.Errorf("parse bound address: %w", err)
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	pf := &Portfile{
		Host:      host,
		Port:      port,
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		DBPath:    s.dbPath,
		Token:     s.token,
	}
	if err := writePortfile(s.dbPath, pf); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("write portfile: %w", err)
	}

	if w, err := startPortfileWatcher(s.dbPath, s.logger); err != nil {
		if s.logger != nil {
			s.logger.Warn("portfile watcher failed to start", zap.Error(err))
		}
	} else {
		s.watcher = w
	}

	s.httpServer = &http.Server{Handler: s.router()}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error("sidecar server stopped", zap.Error(err))
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("sidecar started", zap.String("host", host), zap.Int("port", port))
	}
	return &StartInfo{Host: host, Port: port, PID: pf.PID, Token: s.token}, nil
}

// Stop gracefully shuts down the server: stops accepting connections,
// waits for in-flight jobs, closes the store, and removes the portfile.
// Idempotent and safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.watcher != nil {
		s.watcher.stop()
	}
	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(ctx)
	}
	s.jobs.Wait()
	if s.store != nil {
		_ = s.store.Close()
	}
	_ = removePortfile(s.dbPath)
	if s.logger != nil {
		s.logger.Info("sidecar stopped")
	}
	return shutdownErr
}
