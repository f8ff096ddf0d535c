// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package api implements the tracker's ambient HTTP JSON API: a liveness
// probe at /check and a runtime statistics dump at /stats. This replaces
// the teacher's management REST API (torrent/user/client CRUD), which
// depended on a peer-ID/passkey accounting model this tracker does not
// have; the two endpoints that remain are the ones any deployment needs
// for monitoring, kept in the teacher's ResponseHandler/httprouter shape.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/tylerb/graceful"
	"golang.org/x/net/netutil"

	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/tracker"
)

// ResponseHandler is an HTTP handler that returns a status code.
type ResponseHandler func(http.ResponseWriter, *http.Request, httprouter.Params) (int, error)

// Config configures the API server.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ListenLimit  int
}

// Server serves the ambient /check and /stats endpoints.
type Server struct {
	cfg     Config
	tracker *tracker.Tracker
	repo    backend.Repository
	grace   *graceful.Server

	addr     string
	stopping bool
}

// NewServer constructs an API Server. repo is pinged by /check; pass nil
// to skip the backend liveness check (e.g. the in-process memory driver
// has nothing worth pinging).
func NewServer(cfg Config, tkr *tracker.Tracker, repo backend.Repository) *Server {
	return &Server{cfg: cfg, addr: cfg.ListenAddr, tracker: tkr, repo: repo}
}

func (s *Server) makeHandler(handler ResponseHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, err := handler(w, r, p)
		if err != nil {
			glog.Errorf("api: %s %s: %s", r.Method, r.URL.Path, err)
			http.Error(w, err.Error(), code)
			return
		}
		if code != http.StatusOK {
			http.Error(w, http.StatusText(code), code)
		}
	}
}

func newRouter(s *Server) *httprouter.Router {
	r := httprouter.New()
	r.GET("/check", s.makeHandler(s.check))
	r.GET("/stats", s.makeHandler(s.stats))
	return r
}

// Setup is a no-op; the API server has no external dependency to
// initialize before Serve.
func (s *Server) Setup() error { return nil }

// Serve runs the API server, blocking until it is stopped.
func (s *Server) Serve() {
	router := newRouter(s)
	serv := &http.Server{
		Handler:      router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.grace = &graceful.Server{Server: serv, Timeout: 10 * time.Second}

	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		glog.Errorf("api: listen: %s", err)
		return
	}
	if s.cfg.ListenLimit > 0 {
		l = netutil.LimitListener(l, s.cfg.ListenLimit)
	}
	s.addr = l.Addr().String()

	glog.Infof("api: serving on %s", s.addr)
	if err := s.grace.Serve(l); err != nil {
		glog.Errorf("api: serve: %s", err)
	}
}

// Stop cleanly shuts down the server.
func (s *Server) Stop() {
	if !s.stopping {
		s.stopping = true
		s.grace.Stop(s.grace.Timeout)
	}
}
