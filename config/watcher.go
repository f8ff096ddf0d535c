// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// debounceInterval is how long a file must go unchanged before Watcher
// delivers a reload, collapsing the burst of events most editors produce
// on a single save (write, chmod, rename-into-place).
const debounceInterval = 250 * time.Millisecond

// Watcher reloads a Config from disk whenever the underlying file changes,
// delivering the new value on Reloaded. It never blocks the filesystem
// watch goroutine: a slow or absent reader only delays delivery, it does
// not stall event processing.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	Reloaded chan *Config

	mu       sync.Mutex
	lastSeen time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher constructs a Watcher for the config file at path and begins
// watching immediately.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		fsw:      fsw,
		Reloaded: make(chan *Config, 1),
		stopChan: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	pending := make(chan struct{}, 1)
	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.mu.Lock()
			w.lastSeen = time.Now()
			w.mu.Unlock()
			select {
			case pending <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			glog.Errorf("config: watch error: %s", err)
		case <-ticker.C:
			select {
			case <-pending:
			default:
				continue
			}
			w.mu.Lock()
			quiet := time.Since(w.lastSeen) >= debounceInterval
			w.mu.Unlock()
			if !quiet {
				pending <- struct{}{}
				continue
			}
			w.deliver()
		}
	}
}

func (w *Watcher) deliver() {
	conf, err := Open(w.path)
	if err != nil {
		glog.Errorf("config: reload %s: %s", w.path, err)
		return
	}
	glog.Infof("config: reloaded %s", w.path)
	select {
	case w.Reloaded <- conf:
	default:
		glog.Warning("config: reload channel full, dropping stale notification")
		<-w.Reloaded
		w.Reloaded <- conf
	}
}

// Stop stops watching and releases the underlying filesystem handle.
func (w *Watcher) Stop() {
	close(w.stopChan)
	w.fsw.Close()
	w.wg.Wait()
}
