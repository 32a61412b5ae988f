package engine

import "sync"

// sequence allocates segment numbers. Every number is handed out once, in
// increasing order, whether or not the segment it names is written.
type sequence struct {
	mu   sync.Mutex
	next uint64
}

// Next returns the next segment number
func (s *sequence) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.next
	s.next++
	return seq
}

// Peek returns the number the next call to Next will return
func (s *sequence) Peek() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
