// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package http implements HttpProtocol: a BitTorrent tracker over HTTP as
// per BEP 3, serving /announce and /scrape.
package http

import (
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/tylerb/graceful"
	"golang.org/x/net/netutil"

	"github.com/opentracker/chihaya/network"
	"github.com/opentracker/chihaya/policy"
	"github.com/opentracker/chihaya/tracker"
)

// ResponseHandler is an HTTP handler that returns a status code.
type ResponseHandler func(http.ResponseWriter, *http.Request, httprouter.Params) (int, error)

// Config configures the HTTP server.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ListenLimit  int
}

// Server serves the tracker's HTTP protocol.
type Server struct {
	addr     string
	cfg      Config
	resolver *network.Resolver
	tracker  *tracker.Tracker
	grace    *graceful.Server
	stopping bool
}

// NewServer constructs an HTTP Server.
func NewServer(cfg Config, resolver *network.Resolver, tkr *tracker.Tracker) *Server {
	return &Server{addr: cfg.ListenAddr, cfg: cfg, resolver: resolver, tracker: tkr}
}

// ServerAddr reports the address the server is bound to, used in the
// index page's advertised announce URL.
func (s *Server) ServerAddr() string { return s.addr }

// makeHandler wraps a ResponseHandler, timing the request, recording
// stats, and logging a line on error or at verbose log levels.
func (s *Server) makeHandler(handler ResponseHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()
		code, err := handler(w, r, p)
		duration := time.Since(start)

		var msg string
		if err != nil {
			msg = err.Error()
		} else if code != http.StatusOK {
			msg = http.StatusText(code)
		}

		if len(msg) > 0 {
			clientMsg := msg
			if code >= http.StatusInternalServerError {
				// Internal failures are logged below but never sent as-is.
				clientMsg = http.StatusText(code)
			}
			http.Error(w, clientMsg, code)
		}

		if len(msg) > 0 || glog.V(2) {
			reqString := r.URL.Path + " " + r.RemoteAddr
			if glog.V(3) {
				reqString = r.URL.RequestURI() + " " + r.RemoteAddr
			}
			if len(msg) > 0 {
				glog.Errorf("[HTTP - %9s] %s (%d - %s)", duration, reqString, code, msg)
			} else {
				glog.Infof("[HTTP - %9s] %s (%d)", duration, reqString, code)
			}
		}

		s.tracker.Stats.RecordResponseTime(duration)
	}
}

// newRouter returns a router with all the routes. Key-bearing tracker
// modes serve under a /:key/ prefix; other modes serve at the bare path.
func newRouter(s *Server) *httprouter.Router {
	r := httprouter.New()

	mode := s.tracker.Gate.Mode()
	if mode == policy.Private || mode == policy.PrivateListed {
		r.GET("/:key/announce", s.makeHandler(s.serveAnnounce))
		r.GET("/:key/scrape", s.makeHandler(s.serveScrape))
	} else {
		r.GET("/announce", s.makeHandler(s.serveAnnounce))
		r.GET("/scrape", s.makeHandler(s.serveScrape))
	}
	r.GET("/", s.makeHandler(s.serveIndex))
	return r
}

// connState panics on a hijacked connection and logs any unknown state;
// it keeps no connection counts.
func (s *Server) connState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew, http.StateClosed, http.StateActive, http.StateIdle:
	case http.StateHijacked:
		panic("connection impossibly hijacked")
	default:
		glog.Errorf("connection transitioned to unknown state %s (%d)", state, state)
	}
}

// Setup is a no-op; the HTTP server has no external dependency to
// initialize before Serve.
func (s *Server) Setup() error { return nil }

// Serve runs the HTTP server, blocking until it is stopped.
func (s *Server) Serve() {
	router := newRouter(s)
	serv := &http.Server{
		Handler:      router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		ConnState:    s.connState,
	}
	s.grace = &graceful.Server{Server: serv, Timeout: 10 * time.Second}

	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		glog.Errorf("http: listen: %s", err)
		return
	}
	if s.cfg.ListenLimit > 0 {
		l = netutil.LimitListener(l, s.cfg.ListenLimit)
	}
	s.addr = l.Addr().String()

	glog.Infof("http: serving on %s", s.addr)
	if err := s.grace.Serve(l); err != nil {
		glog.Errorf("http: serve: %s", err)
	}
	glog.Info("http: server shut down cleanly")
}

// Stop cleanly shuts down the server.
func (s *Server) Stop() {
	if !s.stopping {
		s.stopping = true
		s.grace.Stop(s.grace.Timeout)
	}
}
