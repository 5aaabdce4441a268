// Package store holds the process-wide AppState: a loading flag and the last
// error message. It is independent of the uploader's job state.
package store

import (
	"sync"
)

// AppState is the shared UI state.
type AppState struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Store is a mutex-guarded AppState with change subscriptions.
type Store struct {
	mu    sync.RWMutex
	state AppState

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(AppState)
}

func New() *Store {
	return &Store{subs: make(map[int]func(AppState))}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetLoading sets the loading flag. Subscribers are notified only on change.
func (s *Store) SetLoading(loading bool) {
	s.update(func(st *AppState) { st.Loading = loading })
}

// SetError records msg; an empty msg clears the error.
func (s *Store) SetError(msg string) {
	s.update(func(st *AppState) { st.Error = msg })
}

func (s *Store) update(fn func(*AppState)) {
	s.mu.Lock()
	prev := s.state
	fn(&s.state)
	next := s.state
	s.mu.Unlock()
	if prev == next {
		return
	}
	s.notify(next)
}

// Subscribe registers fn for state changes and returns the func that removes it.
func (s *Store) Subscribe(fn func(AppState)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(st AppState) {
	s.subMu.Lock()
	fns := make([]func(AppState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
