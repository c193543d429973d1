package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// ChangeFunc is called after a new configuration took effect.
type ChangeFunc func(prev, next *Config)

// Store holds the configuration in effect. Readers always see a complete,
// validated Config; writers replace it atomically.
type Store struct {
	path    string
	current atomic.Pointer[Config]

	mu        sync.Mutex // serialises writers
	file      *Config    // what the backing file holds, without env overrides
	listeners []ChangeFunc
}

// NewStore wraps an already validated cfg. An empty path disables
// persistence.
func NewStore(path string, cfg *Config) *Store {
	s := &Store{path: path, file: cfg.Clone()}
	s.current.Store(cfg.Clone())
	return s
}

// OpenStore loads the configuration at path into a new Store
func OpenStore(path string) (*Store, error) {
	file, cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(path, cfg)
	s.file = file
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the configuration in effect
func (s *Store) Get() *Config {
	return s.current.Load().Clone()
}

// OnChange registers fn to run after every successful change
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update applies fn to a copy of the configuration, validates it, swaps it
// in and persists it. A validation failure leaves the previous
// configuration in effect. A persistence failure is returned after the
// swap: the change is live but not saved.
func (s *Store) Update(fn func(*Config)) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := prev.Clone()
	fn(next)
	return s.commit(prev, next, true)
}

// Patch merges a partial JSON document over the configuration. Unknown
// keys are rejected.
func (s *Store) Patch(data []byte) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := prev.Clone()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(next); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"body": err.Error()}}
	}
	return s.commit(prev, next, true)
}

// Reload re-reads the backing file and environment. On failure the
// previous configuration stays in effect.
func (s *Store) Reload() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, next, err := load(s.path)
	if err != nil {
		return nil, err
	}
	cfg, err := s.commit(s.current.Load(), next, false)
	if err == nil {
		s.file = file
	}
	return cfg, err
}

func (s *Store) commit(prev, next *Config, persist bool) (*Config, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}
	s.current.Store(next)

	for _, fn := range s.listeners {
		fn(prev.Clone(), next.Clone())
	}

	if persist && s.path != "" {
		onDisk := withoutEnv(s.file, prev, next)
		if err := onDisk.Save(s.path); err != nil {
			return next.Clone(), fmt.Errorf("config applied but not saved: %w", err)
		}
		s.file = onDisk
	}
	return next.Clone(), nil
}
