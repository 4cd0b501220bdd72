package httpd

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type Diagnostic interface {
	StartingService()
	StoppedService()
	ListeningOn(addr string)
	AuthenticationEnabled(enabled bool)

	HTTP(method, uri string, status int, remote, reqID string, duration time.Duration)

	Error(msg string, err error)
}

type Service struct {
	ln   net.Listener
	addr string
	err  chan error

	server *http.Server
	mu     sync.Mutex
	wg     sync.WaitGroup

	shutdownTimeout time.Duration

	Handler *Handler

	diag Diagnostic
}

func NewService(c Config, d Diagnostic) *Service {
	return &Service{
		addr:            c.BindAddress,
		err:             make(chan error, 1),
		shutdownTimeout: time.Duration(c.ShutdownTimeout),
		Handler:         NewHandler(c.AuthEnabled, c.LogEnabled, c.SharedSecret, d),
		diag:            d,
	}
}

// Open starts the service
func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diag.StartingService()
	s.diag.AuthenticationEnabled(s.Handler.requireAuthentication)

	if err := s.Handler.validate(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	s.diag.ListeningOn(listener.Addr().String())
	s.ln = listener

	s.server = &http.Server{
		Handler: s.Handler,
	}

	s.wg.Add(1)
	go s.serve()
	return nil
}

// Close stops accepting connections and waits up to the shutdown timeout for
// active requests to finish.
func (s *Service) Close() error {
	defer s.diag.StoppedService()
	s.mu.Lock()
	defer s.mu.Unlock()
	// If server is not set we were never started
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err == context.DeadlineExceeded {
		s.diag.Error("shutdown timed out, closing remaining connections", err)
		err = s.server.Close()
	}
	s.wg.Wait()
	s.server = nil
	return err
}

func (s *Service) Err() <-chan error {
	return s.err
}

// serve serves the handler from the listener.
func (s *Service) serve() {
	defer s.wg.Done()
	err := s.server.Serve(s.ln)
	if err == http.ErrServerClosed {
		s.err <- nil
		return
	}
	s.err <- errors.Wrapf(err, "listener failed: addr=%s", s.Addr())
}

func (s *Service) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

func (s *Service) URL() string {
	if s.ln != nil {
		return "http://" + s.Addr().String() + BasePath
	}
	return ""
}
