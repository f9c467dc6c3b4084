package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/riskcore/pkg/config"
	"github.com/wonny/riskcore/pkg/logger"
)

// HTTP 타임아웃 고정값 - 느린 클라이언트가 커넥션을 계속 점유하지 못하게 한다
const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

// Server serves the risk metrics JSON API over HTTP.
// ⭐ SSOT: 서버 수명주기(listen/shutdown)는 여기서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	port       string
	env        string
}

// New builds a server bound to the configured port
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		logger: log,
		port:   cfg.Port,
		env:    cfg.Env,
	}
}

// Start blocks serving requests until Shutdown is called
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port": s.port,
		"env":  s.env,
	}).Info("Risk API listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the given context
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down risk API")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
