package config

import "sync"

// Holder provides concurrency-safe access to the active Config and
// supports reloading it from the YAML path it was first loaded from.
// A failed reload keeps the previous config active.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded config for later reloads.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get returns the active config. Callers must treat it as read-only.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Path returns the YAML path reloads are read from.
func (h *Holder) Path() string {
	return h.path
}

// Reload re-runs the full load pipeline against the original path and
// swaps the result in. On error the active config is left untouched.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()

	return nil
}
