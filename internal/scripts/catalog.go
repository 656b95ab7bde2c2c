// Package scripts maintains a catalog of shell scripts embedded in markdown
// runbooks. Scripts are fenced code blocks tagged bash/sh/shell/zsh, with an
// optional JSON annotation carrying an id and title. The catalog reloads
// itself when the runbook directory changes.
package scripts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces bursts of file events into one reload.
const debounceInterval = 500 * time.Millisecond

// Script is one runnable shell block extracted from a markdown document.
type Script struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Language  string `json:"language"`
	Source    string `json:"source"`
	Code      string `json:"code"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

// Catalog indexes the scripts found under one runbook directory.
// It is safe for concurrent use.
type Catalog struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	scripts map[string]Script
	order   []string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCatalog creates a catalog over dir and performs the initial scan.
func NewCatalog(dir string, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		dir:     dir,
		logger:  logger,
		scripts: make(map[string]Script),
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Watch starts reloading the catalog when markdown files under the
// directory change. Stop it with Close.
func (c *Catalog) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(c.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	c.watcher = w
	c.done = make(chan struct{})

	go c.watchLoop()
	return nil
}

// Close stops the watcher, if running.
func (c *Catalog) Close() {
	if c.watcher == nil {
		return
	}
	close(c.done)
	c.watcher.Close()
}

// List returns every script in document order, grouped by source file.
func (c *Catalog) List() []Script {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Script, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.scripts[id])
	}
	return out
}

// Get returns the script with the given id.
func (c *Catalog) Get(id string) (Script, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scripts[id]
	return s, ok
}

// reload rescans the directory and swaps in the fresh index.
func (c *Catalog) reload() error {
	scripts := make(map[string]Script)
	var order []string

	if _, err := os.Stat(c.dir); errors.Is(err, fs.ErrNotExist) {
		// A missing directory is an empty catalog, not a startup failure.
		c.logger.Warn("runbook directory does not exist", "dir", c.dir)
		c.mu.Lock()
		c.scripts = scripts
		c.order = nil
		c.mu.Unlock()
		return nil
	}

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			rel = d.Name()
		}

		for _, s := range extractScripts(rel, string(content)) {
			if _, dup := scripts[s.ID]; dup {
				c.logger.Warn("duplicate script id, keeping first", "id", s.ID, "source", rel)
				continue
			}
			scripts[s.ID] = s
			order = append(order, s.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan scripts dir: %w", err)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := scripts[order[i]], scripts[order[j]]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.LineStart < b.LineStart
	})

	c.mu.Lock()
	c.scripts = scripts
	c.order = order
	c.mu.Unlock()

	c.logger.Info("script catalog loaded", "dir", c.dir, "scripts", len(order))
	return nil
}

// watchLoop debounces file events and triggers reloads.
func (c *Catalog) watchLoop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(strings.ToLower(ev.Name), ".md") {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				timerC = timer.C
			} else {
				timer.Reset(debounceInterval)
			}
		case <-timerC:
			if err := c.reload(); err != nil {
				c.logger.Error("reload script catalog", "error", err)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("script watcher", "error", err)
		case <-c.done:
			return
		}
	}
}
