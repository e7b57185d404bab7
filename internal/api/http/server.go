package http

import (
	"anchor/internal/config"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type Server struct {
	log logger.Logger
	srv *http.Server
}

func NewServer(log logger.Logger, cfg *config.HTTPConfig, handler http.Handler) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("http config is required to the server")
	}
	if handler == nil {
		return nil, errors.New("handler is required to the server")
	}

	// sane defaults
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	read := cfg.ReadTimeout
	if read <= 0 {
		read = 10 * time.Second
	}
	write := cfg.WriteTimeout
	if write <= 0 {
		write = 30 * time.Second
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}

	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       read,
			ReadHeaderTimeout: read,
			WriteTimeout:      write,
			IdleTimeout:       idle,
		},
	}, nil
}

// Serve blocks until the listener fails or Shutdown is called
func (s *Server) Serve(ln net.Listener) error {
	s.log.Infof("HTTP server listening on %s", ln.Addr().String())

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
