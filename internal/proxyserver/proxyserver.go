// Package proxyserver wires the codec, operation index, dispatcher and
// demultiplexer into a runnable TCP load-balancing proxy: it accepts
// client connections, dials (or reuses) upstream connections, and pumps
// messages through internal/dispatch and internal/demux in both
// directions. The accept-loop/per-connection-goroutine shape follows
// nicolar-ldap-proxy's handleConn; Start/Stop lifecycle follows this
// module's directory server.
package proxyserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/majewsky-labs/lloadd/internal/backend"
	"github.com/majewsky-labs/lloadd/internal/demux"
	"github.com/majewsky-labs/lloadd/internal/dispatch"
	"github.com/majewsky-labs/lloadd/internal/ldapwire"
	"github.com/majewsky-labs/lloadd/internal/lbconn"
	"github.com/majewsky-labs/lloadd/internal/metrics"
)

// Config configures the proxy listener and its upstream pool.
type Config struct {
	ListenAddress  string
	UpstreamAddrs  []string
	MaxOpsInFlight int64
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Server is the running proxy: a listener, a dispatcher, a
// demultiplexer and the pool of upstream connections they share.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	selector   *backend.RoundRobin
	dispatcher *dispatch.Dispatcher
	demux      *demux.Demultiplexer
	workers    *dispatch.WorkerPool

	listener net.Listener

	mu        sync.Mutex
	upstreams []*lbconn.Connection
	wg        sync.WaitGroup
}

// New builds a Server from cfg. Upstream connections are dialed lazily
// by Start, not here, so construction never blocks on network I/O.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxOps := cfg.MaxOpsInFlight
	if maxOps <= 0 {
		maxOps = 256
	}

	selector := backend.NewRoundRobin(nil)
	return &Server{
		cfg:        cfg,
		logger:     logger,
		selector:   selector,
		dispatcher: dispatch.New(selector, cfg.Metrics, logger),
		demux:      demux.New(cfg.Metrics, logger),
		workers:    dispatch.NewWorkerPool(maxOps),
	}
}

// Start dials every configured upstream, starts a response-reading
// goroutine per upstream, and begins accepting client connections. It
// returns once the listener is bound; Accept loops run in background
// goroutines.
func (s *Server) Start() error {
	for _, addr := range s.cfg.UpstreamAddrs {
		if err := s.addUpstream(addr); err != nil {
			return fmt.Errorf("proxyserver: dialing upstream %s: %w", addr, err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("proxyserver: listening on %s: %w", s.cfg.ListenAddress, err)
	}
	s.listener = ln

	s.logger.Info("proxy listening", "address", s.cfg.ListenAddress, "upstreams", len(s.cfg.UpstreamAddrs))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every upstream connection, then waits
// for background goroutines to exit.
func (s *Server) Stop() error {
	var firstErr error
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			firstErr = err
		}
	}

	s.mu.Lock()
	upstreams := s.upstreams
	s.mu.Unlock()
	for _, u := range upstreams {
		_ = u.Close()
	}

	s.wg.Wait()
	return firstErr
}

func (s *Server) addUpstream(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	upstream := lbconn.NewUpstreamConnection(conn)

	s.mu.Lock()
	s.upstreams = append(s.upstreams, upstream)
	pool := append([]*lbconn.Connection(nil), s.upstreams...)
	s.mu.Unlock()
	s.selector.SetPool(pool)

	s.wg.Add(1)
	go s.readUpstreamResponses(upstream)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		client := lbconn.NewClientConnection(conn)
		s.wg.Add(1)
		go s.readClientRequests(client)
	}
}

func (s *Server) readClientRequests(client *lbconn.Connection) {
	defer s.wg.Done()
	defer client.Close()

	for {
		msg, err := ldapwire.ReadMessage(client.Conn())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("client read failed", "remote", client.RemoteAddr(), "error", err)
			}
			return
		}

		m := msg
		err = s.workers.SubmitBackground(func() {
			if err := s.dispatcher.Dispatch(client, m); err != nil {
				s.logger.Warn("dispatch failed", "remote", client.RemoteAddr(), "error", err)
			}
		})
		if err != nil {
			s.logger.Error("worker pool rejected dispatch", "error", err)
			return
		}
	}
}

func (s *Server) readUpstreamResponses(upstream *lbconn.Connection) {
	defer s.wg.Done()

	for {
		msg, err := ldapwire.ReadMessage(upstream.Conn())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("upstream read failed", "remote", upstream.RemoteAddr(), "error", err)
			}
			return
		}

		if err := s.demux.Forward(upstream, msg); err != nil {
			s.logger.Warn("demux forward failed", "remote", upstream.RemoteAddr(), "error", err)
		}
	}
}
