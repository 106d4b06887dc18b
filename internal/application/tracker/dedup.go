package tracker

// seenSet is a bounded FIFO set of event keys. When full, the oldest key is
// forgotten. Not safe for concurrent use; only the dispatcher touches it.
type seenSet struct {
	keys map[string]struct{}
	ring []string
	next int
}

func newSeenSet(size int) *seenSet {
	if size <= 0 {
		size = 1
	}
	return &seenSet{keys: make(map[string]struct{}, size), ring: make([]string, size)}
}

// add records key and reports whether it was new.
func (s *seenSet) add(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.keys, old)
	}
	s.ring[s.next] = key
	s.keys[key] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return true
}

func (s *seenSet) len() int { return len(s.keys) }
