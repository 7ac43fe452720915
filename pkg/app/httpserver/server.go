// Package httpserver runs the monitoring HTTP server of an audit run.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/permit-auditor/pkg/config"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
)

// NewServer builds the monitoring server for cfg.
func NewServer(cfg *config.MonitoringConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}

// ServeAndWait binds srv.Addr, serves until ctx is done or serving stops on
// its own, then drains in-flight requests for at most shutdownTimeout.
// A bind failure is returned before anything is served.
func ServeAndWait(ctx context.Context, logger *zap.Logger, srv *http.Server, shutdownTimeout time.Duration) error {
	if srv == nil {
		return errors.New("monitoring: nil http server")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("monitoring: listen on %s: %w", srv.Addr, err)
	}
	logger.Info("Monitoring endpoints up", zap.String("address", ln.Addr().String()))

	served := make(chan error, 1)
	go func() {
		// Serve owns ln and closes it on return.
		served <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Debug("Run finished, stopping monitoring endpoints")
	case serveErr = <-served:
		// Serve only returns ErrServerClosed after Shutdown, which has not run yet.
		logger.Error("Monitoring endpoints stopped serving", zap.Error(serveErr))
		serveErr = fmt.Errorf("monitoring: serve: %w", serveErr)
	}

	// The run context may already be canceled; draining gets its own deadline.
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var drainErr error
	if err := srv.Shutdown(drainCtx); err != nil {
		drainErr = fmt.Errorf("monitoring: shutdown: %w", err)
		logger.Warn("Monitoring endpoints did not drain in time", zap.Error(err))
	}

	if err := errors.Join(serveErr, drainErr); err != nil {
		return err
	}
	logger.Info("Monitoring endpoints down")
	return nil
}
