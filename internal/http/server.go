// README: HTTP server; owns the gin engine and its graceful shutdown.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/infra"
	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/earnings"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/order"
)

const shutdownTimeout = 10 * time.Second

type ServerDeps struct {
	Order    *order.Service
	Matching *matching.Service
	Courier  *courier.Service
	Location *location.Service
	Earnings *earnings.Service
	Verifier infra.TokenVerifier
	Logger   *zap.Logger
}

type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: deps.Logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
