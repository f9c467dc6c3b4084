package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/wonny/riskcore/pkg/config"
	"github.com/wonny/riskcore/pkg/logger"
)

func TestNewServer(t *testing.T) {
	cfg := &config.Config{
		Port:      "8090",
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",
	}

	s := New(cfg, logger.New(cfg), http.NewServeMux())

	if s.httpServer.Addr != ":8090" {
		t.Errorf("Addr = %s, want :8090", s.httpServer.Addr)
	}
	if s.httpServer.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", s.httpServer.ReadTimeout)
	}
	if s.httpServer.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v, want 15s", s.httpServer.WriteTimeout)
	}
	if s.httpServer.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", s.httpServer.IdleTimeout)
	}
}
