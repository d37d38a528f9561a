package tool

import (
	"slices"
	"sync/atomic"
)

// Store holds the configured installations. Readers get an immutable
// snapshot; Replace swaps the whole list at once so a concurrent reader sees
// either the old or the new configuration, never a mix.
type Store struct {
	list atomic.Pointer[[]Installation]
}

// NewStore returns a store holding insts.
func NewStore(insts ...Installation) *Store {
	s := &Store{}
	s.Replace(insts)
	return s
}

// Replace atomically swaps the installation list. The slice is copied.
func (s *Store) Replace(insts []Installation) {
	cp := slices.Clone(insts)
	s.list.Store(&cp)
}

// Load returns the current snapshot. Callers must not modify it.
func (s *Store) Load() []Installation {
	p := s.list.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Lookup finds an installation by name in the current snapshot.
func (s *Store) Lookup(name string) (Installation, bool) {
	for _, inst := range s.Load() {
		if inst.Name == name {
			return inst, true
		}
	}
	return Installation{}, false
}
