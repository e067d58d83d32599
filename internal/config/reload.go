package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultReloadInterval is how often a [Reloader] looks at its file.
const DefaultReloadInterval = 5 * time.Second

// Reloader keeps the latest valid [Config] read from a file. Edits that
// fail to parse or validate are logged and ignored, so the last good config
// stays in effect.
type Reloader struct {
	path     string
	interval time.Duration
	log      *slog.Logger
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    stamp
}

// stamp identifies one version of the file on disk.
type stamp struct {
	modified time.Time
	size     int64
	sum      [sha256.Size]byte
}

// ReloadOption configures a [Reloader].
type ReloadOption func(*Reloader)

// WithReloadInterval sets the polling interval.
func WithReloadInterval(d time.Duration) ReloadOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReloadLogger sets the logger for reload messages.
func WithReloadLogger(l *slog.Logger) ReloadOption {
	return func(r *Reloader) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReloader reads path once and returns a Reloader holding the result.
// onChange, if non-nil, is called after each accepted edit with the previous
// and the new config.
func NewReloader(path string, onChange func(old, new *Config), opts ...ReloadOption) (*Reloader, error) {
	r := &Reloader{
		path:     path,
		interval: DefaultReloadInterval,
		log:      slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(r)
	}
	cfg, st, err := r.read()
	if err != nil {
		return nil, fmt.Errorf("config: initial load of %s: %w", path, err)
	}
	r.current, r.seen = cfg, st
	return r, nil
}

// Current returns the most recently accepted config.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run polls the file until ctx is cancelled. It always returns nil; read
// errors are logged and retried on the next tick.
func (r *Reloader) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := r.Check(); err != nil {
				r.log.Warn("config reload skipped", "path", r.path, "err", err)
			}
		}
	}
}

// Check looks at the file once and reports whether a new config was
// accepted. A file whose timestamp and size are unchanged is not read.
// Rewrites with identical content are not reported as changes.
func (r *Reloader) Check() (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	prev := r.seen
	r.mu.Unlock()
	if info.ModTime().Equal(prev.modified) && info.Size() == prev.size {
		return false, nil
	}

	cfg, st, err := r.read()
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	if st.sum == r.seen.sum {
		r.seen = st
		r.mu.Unlock()
		return false, nil
	}
	old := r.current
	r.current, r.seen = cfg, st
	r.mu.Unlock()

	r.log.Info("configuration reloaded", "path", r.path)
	if r.onChange != nil {
		r.onChange(old, cfg)
	}
	return true, nil
}

func (r *Reloader) read() (*Config, stamp, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil, stamp{}, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, stamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp{}, err
	}
	return cfg, stamp{modified: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
