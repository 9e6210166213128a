// Package server runs the UDP listener that terminates incoming DNS
// queries and drives them through the ambient middleware chain (§4.9):
// access control, access log, metrics, and finally the script router.
package server

import (
	"context"
	"sync"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/compassd/dcompass/config"
	"github.com/compassd/dcompass/middleware"
)

// Server listens on a single UDP address and dispatches every datagram
// through the middleware chain built by middleware.Setup.
type Server struct {
	addr string

	chainPool sync.Pool

	mu      sync.Mutex
	dnsSrv  *dns.Server
	started bool
}

// New builds a Server bound to cfg.Address. A blank address defaults to
// ":53", the project's historical default.
func New(cfg *config.Config) *Server {
	addr := cfg.Address
	if addr == "" {
		addr = ":53"
	}

	s := &Server{addr: addr}

	s.chainPool.New = func() interface{} {
		return middleware.NewChain(middleware.Handlers())
	}

	return s
}

// ServeDNS implements dns.Handler, pulling a chain from the pool and
// driving it through every middleware stage.
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	ch := s.chainPool.Get().(*middleware.Chain)

	ch.Reset(w, r)
	ch.Next(context.Background())

	s.chainPool.Put(ch)
}

// Run starts the UDP listener in the background and returns at once.
// When ctx is cancelled, the listener is shut down.
func (s *Server) Run(ctx context.Context) {
	srv := &dns.Server{
		Addr:    s.addr,
		Net:     "udp",
		Handler: s,
	}

	s.mu.Lock()
	s.dnsSrv = srv
	s.mu.Unlock()

	go func() {
		zlog.Info("dns server listening", "net", "udp", "addr", s.addr)

		s.mu.Lock()
		s.started = true
		s.mu.Unlock()

		if err := srv.ListenAndServe(); err != nil {
			zlog.Error("dns listener failed", "net", "udp", "addr", s.addr, "error", err.Error())
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
}

// Stop shuts the UDP listener down.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.dnsSrv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown()
}

// Started reports whether the listener goroutine has begun serving.
func (s *Server) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
