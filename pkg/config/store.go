package config

import "sync/atomic"

// StreamStore holds the live stream settings. Readers always see a complete
// snapshot; a reload swaps the whole value.
type StreamStore struct {
	current atomic.Pointer[StreamConfig]
}

// NewStreamStore creates a store seeded with cfg.
func NewStreamStore(cfg StreamConfig) *StreamStore {
	s := &StreamStore{}
	s.Store(cfg)
	return s
}

// Load returns the current settings.
func (s *StreamStore) Load() StreamConfig {
	return *s.current.Load()
}

// Store replaces the current settings.
func (s *StreamStore) Store(cfg StreamConfig) {
	s.current.Store(&cfg)
}
