package binscope

import (
	"fmt"
	"sort"
)

// Store is the registry of named documents. The registry lock only guards
// the name map; each Document carries its own lock, so a long Translate on
// one document never blocks lookups.
type Store struct {
	lock poisonLock
	docs map[string]*Document
}

// NewStore returns an empty registry.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// List returns the registered names in sorted order.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.lock.read(func() error {
		names = make([]string, 0, len(s.docs))
		for name := range s.docs {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the document registered under name. Names are case-sensitive.
func (s *Store) Get(name string) (*Document, error) {
	var d *Document
	err := s.lock.read(func() error {
		var ok bool
		if d, ok = s.docs[name]; !ok {
			return fmt.Errorf("document %q: %w", name, ErrNotFound)
		}
		return nil
	})
	return d, err
}

// Add registers d under name, replacing any document already registered
// there. Holders of the replaced document keep a valid reference; later
// lookups see d.
func (s *Store) Add(name string, d *Document) error {
	err := s.lock.write(func() error {
		s.docs[name] = d
		return nil
	})
	if err != nil {
		return fmt.Errorf("add document %q: %w", name, err)
	}
	return nil
}
