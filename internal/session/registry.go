package session

// Registry is the live set of sessions in connection order. It is the source
// of truth for broadcast fan-out and user-list snapshots.
type Registry struct {
	sessions []*Session
}

// Add appends s to the registry.
func (r *Registry) Add(s *Session) {
	if s == nil {
		return
	}
	r.sessions = append(r.sessions, s)
}

// Remove drops s and reports whether it was present.
func (r *Registry) Remove(s *Session) bool {
	for i, candidate := range r.sessions {
		if candidate == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Sessions returns a copy of the live sessions in connection order.
func (r *Registry) Sessions() []*Session {
	copied := make([]*Session, len(r.sessions))
	copy(copied, r.sessions)
	return copied
}

// Except returns every live session other than excluded.
func (r *Registry) Except(excluded *Session) []*Session {
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s != excluded {
			targets = append(targets, s)
		}
	}
	return targets
}
