// Package server runs the TCP front end: an accept loop that spawns one
// goroutine per connection, plus graceful shutdown that flushes the
// current page before exiting. Grounded on
// original_source/src/serverv2/server.rs's run/accept/accept_loop, with
// tokio::signal::ctrl_c generalised to os/signal over SIGINT and SIGTERM.
package server

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/kl4mm/hash-db/dispatcher"
	"github.com/kl4mm/hash-db/pager"
)

// Server accepts client connections and dispatches their commands.
type Server struct {
	addr  string
	disp  *dispatcher.Dispatcher
	cache *pager.PageCache
	log   *logrus.Logger
}

// New builds a server that will listen on addr once Serve is called.
func New(addr string, disp *dispatcher.Dispatcher, cache *pager.PageCache, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{addr: addr, disp: disp, cache: cache, log: log}
}

// Serve binds addr and accepts connections until ctx is cancelled, at
// which point it flushes the current page, stops accepting, and returns.
// Each connection runs on its own goroutine so one client's request order
// is independent of every other client's, giving per-connection
// sequential command ordering without serialising unrelated clients
// against each other.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}

	s.log.WithField("addr", s.addr).Info("listening")

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down, flushing current page")
		if err := s.cache.FlushCurrent(); err != nil {
			s.log.WithError(err).Error("flush on shutdown failed")
		}
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.WithError(err).Error("accept error")
				return fmt.Errorf("server: accept: %w", err)
			}
		}

		conn := newConnection(c, s.disp, s.log)
		go conn.serve()
	}
}
