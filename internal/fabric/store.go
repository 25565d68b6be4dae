package fabric

// Store holds the adapters and ports known from the latest discovery pass
// together with their counter series.
type Store struct {
	adapters []*Adapter
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Adapters returns the adapters of the latest reconcile, sorted by name.
func (s *Store) Adapters() []*Adapter {
	return s.adapters
}

// Ports returns every port ordered by adapter name then port number.
func (s *Store) Ports() []*Port {
	var ports []*Port
	for _, a := range s.adapters {
		ports = append(ports, a.Ports...)
	}
	return ports
}

// Lookup returns the port for k, or nil.
func (s *Store) Lookup(k Key) *Port {
	return lookupIn(s.adapters, k)
}

// Reconcile replaces the store contents with found, carrying over series
// state for ports that still exist. It returns the keys of ports that
// vanished. A vendor change on a known adapter resets its ports.
func (s *Store) Reconcile(found []*Adapter) (removed []Key) {
	old := make(map[string]*Adapter, len(s.adapters))
	for _, a := range s.adapters {
		old[a.Name] = a
	}

	present := make(map[Key]bool)
	for _, a := range found {
		prev, ok := old[a.Name]
		if ok && prev.Vendor == a.Vendor {
			byNum := make(map[int]*Port, len(prev.Ports))
			for _, p := range prev.Ports {
				byNum[p.Number] = p
			}
			for i, p := range a.Ports {
				if kept, ok := byNum[p.Number]; ok {
					kept.Adapter = a
					kept.Dir = p.Dir
					a.Ports[i] = kept
				}
			}
		}
		for _, p := range a.Ports {
			present[p.Key()] = true
		}
	}

	for _, a := range s.adapters {
		for _, p := range a.Ports {
			k := p.Key()
			if present[k] {
				if cur := lookupIn(found, k); cur != nil && cur != p {
					// adapter changed vendor, the old series were dropped
					removed = append(removed, k)
				}
				continue
			}
			removed = append(removed, k)
		}
	}

	s.adapters = found
	return removed
}

func lookupIn(adapters []*Adapter, k Key) *Port {
	for _, a := range adapters {
		if a.Name != k.Adapter {
			continue
		}
		for _, p := range a.Ports {
			if p.Number == k.Port {
				return p
			}
		}
	}
	return nil
}
