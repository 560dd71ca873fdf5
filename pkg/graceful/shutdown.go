package graceful

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yieldvault/yield_service/pkg/logger"
)

// Shutdowner is a component that drains within the timeout
type Shutdowner interface {
	Shutdown(timeout time.Duration) error
}

// ShutdownFunc adapts a plain function to Shutdowner
type ShutdownFunc func(timeout time.Duration) error

func (f ShutdownFunc) Shutdown(timeout time.Duration) error { return f(timeout) }

// ShutdownManager stops workers, then the HTTP server, then closes resources
type ShutdownManager struct {
	server      *http.Server
	closers     []io.Closer
	shutdowners []Shutdowner
	logger      *logger.Logger
	timeout     time.Duration
}

func NewShutdownManager(server *http.Server, logger *logger.Logger, closers ...io.Closer) *ShutdownManager {
	return &ShutdownManager{
		server:      server,
		closers:     closers,
		shutdowners: make([]Shutdowner, 0),
		logger:      logger,
		timeout:     30 * time.Second,
	}
}

func (sm *ShutdownManager) Register(s Shutdowner) {
	sm.shutdowners = append(sm.shutdowners, s)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then shuts down
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.Shutdown()
}

// Shutdown runs the shutdown sequence once
func (sm *ShutdownManager) Shutdown() {
	sm.logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	for _, s := range sm.shutdowners {
		if err := s.Shutdown(sm.timeout); err != nil {
			sm.logger.Warn("Component shutdown error", "error", err)
		}
	}

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.Error("Server forced shutdown", "error", err)
		}
	}

	for _, c := range sm.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			sm.logger.Warn("Resource close error", "error", err)
		}
	}

	sm.logger.Info("Shutdown complete")
}
