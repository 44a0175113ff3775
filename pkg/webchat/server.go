package webchat

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Server drives the stream hub and HTTP server lifecycle.
type Server struct {
	router  *Router
	httpSrv *http.Server
	closers []func(context.Context) error
}

// NewServer pairs router with an http.Server listening on addr.
func NewServer(r *Router, addr string) (*Server, error) {
	if r == nil {
		return nil, errors.New("router is nil")
	}
	return &Server{router: r, httpSrv: r.BuildHTTPServer(addr)}, nil
}

func (s *Server) Router() *Router { return s.router }

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

// OnShutdown registers f to run after the HTTP server and router are closed,
// in registration order.
func (s *Server) OnShutdown(f func(context.Context) error) {
	if f != nil {
		s.closers = append(s.closers, f)
	}
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		s.releaseAfterFailedStart()
		return errors.Wrapf(err, "listen on %s", s.httpSrv.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	if err := s.router.Start(srvCtx); err != nil {
		_ = ln.Close()
		s.releaseAfterFailedStart()
		return errors.Wrap(err, "start stream hub")
	}

	eg := errgroup.Group{}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.release(shutdownCtx)
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting travel-agent server")
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}

// release closes the router, then runs the OnShutdown hooks.
func (s *Server) release(ctx context.Context) {
	if err := s.router.Close(); err != nil {
		log.Error().Err(err).Msg("router close error")
	} else {
		log.Info().Msg("router closed")
	}
	for _, f := range s.closers {
		if err := f(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown hook error")
		}
	}
}

func (s *Server) releaseAfterFailedStart() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.release(ctx)
}
