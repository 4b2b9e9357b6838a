package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bascanada/logmerge/internal/config"
	"github.com/bascanada/logmerge/internal/engine/parser"
	"github.com/bascanada/logmerge/internal/engine/pagination"
	"github.com/bascanada/logmerge/internal/engine/session"
)

// Server is the HTTP façade over a pagination.Service and, at most, one
// in-flight merge session.
type Server struct {
	cfg      *config.SessionConfig
	cfgPath  string
	cfgMutex sync.RWMutex
	rules    *parser.RuleSet

	pagination *pagination.Service

	sessionMu sync.Mutex
	active    *session.Orchestrator
	activeKey string

	router        *http.ServeMux
	httpServer    *http.Server
	logger        *slog.Logger
	host          string
	port          string
	eventBroker   *EventBroker
	configWatcher *ConfigWatcher
}

// NewServer creates a server bound to cfg. cfgPath is the session config
// file path this instance was loaded from (stored, not read back); the
// parser template named by cfg.ParserTemplatePath, if any, is loaded and
// hot-reloaded via fsnotify.
func NewServer(host, port string, cfg *config.SessionConfig, cfgPath string, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		cfgPath:     cfgPath,
		pagination:  pagination.New(),
		router:      http.NewServeMux(),
		logger:      logger,
		host:        host,
		port:        port,
		eventBroker: NewEventBroker(logger),
	}

	if cfg.ParserTemplatePath != "" {
		if err := s.ReloadParserTemplate(); err != nil {
			return nil, err
		}
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.healthHandler)
	s.router.HandleFunc("/session/setManifestDir", s.setManifestDirHandler)
	s.router.HandleFunc("/session/reload", s.reloadHandler)
	s.router.HandleFunc("/session/setFilter", s.setFilterHandler)
	s.router.HandleFunc("/session/readRangeByIdx", s.readRangeByIdxHandler)
	s.router.HandleFunc("/session/searchAll", s.searchAllHandler)
	s.router.HandleFunc("/session/cancel", s.cancelHandler)
	s.router.HandleFunc("/merge/start", s.mergeStartHandler)
	s.router.HandleFunc("/events", s.eventsHandler)
}

// Start runs the HTTP server and blocks until a signal is received.
func (s *Server) Start() error {
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()

	if s.cfg.ParserTemplatePath != "" {
		watcher, err := NewConfigWatcher(s, s.cfg.ParserTemplatePath, s.logger)
		if err != nil {
			s.logger.Warn("failed to create parser template watcher", "err", err)
		} else {
			s.configWatcher = watcher
			if err := s.configWatcher.Start(watchCtx); err != nil {
				s.logger.Warn("failed to start parser template watcher", "err", err)
			}
		}
	}

	handler := s.chainMiddleware(s.router, s.recoveryMiddleware, s.corsMiddleware, s.requestIDMiddleware, s.loggingMiddleware)

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", listener.Addr().String())
		fmt.Printf("Server listening on port %d\n", actualPort)
		serverErrors <- s.httpServer.Serve(listener)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		s.logger.Info("shutdown signal received", "signal", sig)

		watchCancel()
		if s.configWatcher != nil {
			s.configWatcher.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("graceful shutdown failed", "err", err)
			return s.httpServer.Close()
		}
		s.logger.Info("server shutdown gracefully")
	}

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")
	if s.configWatcher != nil {
		s.configWatcher.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// ReloadParserTemplate recompiles the rule set from cfg.ParserTemplatePath.
func (s *Server) ReloadParserTemplate() error {
	s.cfgMutex.Lock()
	defer s.cfgMutex.Unlock()

	data, err := os.ReadFile(s.cfg.ParserTemplatePath)
	if err != nil {
		return fmt.Errorf("read parser template: %w", err)
	}
	tmpl, err := parser.LoadTemplate(data)
	if err != nil {
		return fmt.Errorf("parse parser template: %w", err)
	}
	rules, err := parser.CompileRuleSet(tmpl)
	if err != nil {
		return fmt.Errorf("compile parser template: %w", err)
	}
	s.rules = rules
	return nil
}

func (s *Server) getRules() *parser.RuleSet {
	s.cfgMutex.RLock()
	defer s.cfgMutex.RUnlock()
	return s.rules
}

// GetConfig returns the current session config (thread-safe).
func (s *Server) GetConfig() *config.SessionConfig {
	s.cfgMutex.RLock()
	defer s.cfgMutex.RUnlock()
	return s.cfg
}
