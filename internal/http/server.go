package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type Server struct {
	log *logger.Logger
	srv *http.Server
}

func NewServer(log *logger.Logger, addr string, cfg RouterConfig) *Server {
	return &Server{
		log: log.With("component", "HTTPServer"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then shuts down within grace. Hijacked
// sockets are not tracked by Shutdown; the caller drains the hub.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown incomplete", "error", err)
		return err
	}
	s.log.Info("http server stopped")
	return <-errCh
}
