package session

// OutboundLen returns the number of cached packaged messages.
func (s *Session) OutboundLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbound)
}
