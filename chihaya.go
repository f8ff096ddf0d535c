// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package chihaya implements the ability to boot the Chihaya BitTorrent
// tracker with your own imports that can dynamically register additional
// backend.Driver implementations.
package chihaya

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/opentracker/chihaya/api"
	"github.com/opentracker/chihaya/auth"
	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/config"
	"github.com/opentracker/chihaya/http"
	"github.com/opentracker/chihaya/internal/clock"
	"github.com/opentracker/chihaya/internal/xrand"
	"github.com/opentracker/chihaya/janitor"
	"github.com/opentracker/chihaya/network"
	"github.com/opentracker/chihaya/policy"
	"github.com/opentracker/chihaya/stats"
	"github.com/opentracker/chihaya/store"
	"github.com/opentracker/chihaya/tracker"
	"github.com/opentracker/chihaya/udp"

	// backend drivers register themselves on import.
	_ "github.com/opentracker/chihaya/backend/memory"
	_ "github.com/opentracker/chihaya/backend/postgres"
	_ "github.com/opentracker/chihaya/backend/redis"
)

var (
	maxProcs   int
	configPath string
)

func init() {
	flag.IntVar(&maxProcs, "maxprocs", runtime.NumCPU(), "maximum parallel threads")
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
}

// server is the lifecycle every listening component of the tracker
// implements, so Boot can start and stop them uniformly.
type server interface {
	Setup() error
	Serve()
	Stop()
}

// Boot starts the tracker. By exporting this function, anyone can import
// their own backend.Driver into package main's blank imports and then
// call chihaya.Boot.
func Boot() {
	defer glog.Flush()

	flag.Parse()
	runtime.GOMAXPROCS(maxProcs)
	glog.V(1).Info("set max threads to ", maxProcs)

	cfg, err := config.Open(configPath)
	if err != nil {
		glog.Fatalf("failed to parse configuration file: %s", err)
	}
	if cfg == &config.DefaultConfig {
		glog.V(1).Info("using default config")
	} else {
		glog.V(1).Infof("loaded config file: %s", configPath)
	}

	repo, err := backend.Open(cfg.DriverConfig.Name, cfg.DriverConfig.Params["dsn"])
	if err != nil {
		glog.Fatalf("failed to open %q backend: %s", cfg.DriverConfig.Name, err)
	}

	sysClock := clock.System{}
	rng := xrand.NewSource()
	secret := xrand.ServerSecret()

	authSvc, err := auth.New(repo, sysClock)
	if err != nil {
		glog.Fatalf("failed to load auth service: %s", err)
	}

	mode, ok := policy.ParseMode(cfg.TrackerConfig.Mode)
	if !ok {
		glog.Fatalf("invalid tracker mode %q", cfg.TrackerConfig.Mode)
	}
	gate := policy.New(mode, authSvc)

	storeOpts := []store.Option{store.WithClock(sysClock)}
	if cfg.TorrentMapShards > 0 {
		storeOpts = append(storeOpts, store.WithShardCount(cfg.TorrentMapShards))
	}
	if cfg.PersistentTorrentCompleted {
		storeOpts = append(storeOpts, store.WithPersistentTorrents(true))
	}
	repository := store.New(storeOpts...)

	statsAgg := stats.New()

	tkr := tracker.New(repository, authSvc, gate, statsAgg, sysClock, rng, tracker.Config{
		AnnounceInterval:    cfg.Announce.Duration,
		AnnounceIntervalMin: cfg.MinAnnounce.Duration,
		MaxNumWant:          cfg.MaxNumWant,
		OnReverseProxy:      cfg.OnReverseProxy,
		ExternalIP:          cfg.ExternalIP.IP,
	})

	resolver := network.NewResolver(cfg.OnReverseProxy, cfg.RealIPHeader)

	var servers []server
	servers = append(servers, http.NewServer(http.Config{
		ListenAddr:   cfg.HTTPConfig.ListenAddr,
		ReadTimeout:  cfg.HTTPConfig.ReadTimeout.Duration,
		WriteTimeout: cfg.HTTPConfig.WriteTimeout.Duration,
		ListenLimit:  cfg.HTTPConfig.ListenLimit,
	}, resolver, tkr))

	servers = append(servers, udp.NewServer(udp.Config{
		ListenAddr:     cfg.UDPConfig.ListenAddr,
		TrustRequestIP: cfg.UDPConfig.TrustRequestIP,
	}, tkr, resolver, secret, sysClock))

	if cfg.APIConfig.ListenAddr != "" {
		servers = append(servers, api.NewServer(api.Config{
			ListenAddr:   cfg.APIConfig.ListenAddr,
			ReadTimeout:  cfg.APIConfig.ReadTimeout.Duration,
			WriteTimeout: cfg.APIConfig.WriteTimeout.Duration,
			ListenLimit:  cfg.APIConfig.ListenLimit,
		}, tkr, repo))
	}

	jan := janitor.New(janitor.Config{
		Interval:  cfg.InactivePeerCleanupInterval.Duration,
		Threshold: cfg.MaxPeerTimeout.Duration,
	}, tkr, sysClock)
	go jan.Run()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		// If you don't explicitly pass the server, every goroutine captures
		// the last server in the list.
		go func(srv server) {
			for {
				err := srv.Setup()
				if err == nil {
					defer wg.Done()
					srv.Serve()
					return
				}
				glog.Error("setup: ", err)
				time.Sleep(time.Second)
			}
		}(srv)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		wg.Wait()
		signal.Stop(shutdown)
		close(shutdown)
	}()

	<-shutdown
	glog.Info("shutting down...")

	jan.Stop()
	for _, srv := range servers {
		srv.Stop()
	}

	if err := repo.Close(); err != nil {
		glog.Errorf("failed to close backend cleanly: %s", err)
	}
}
