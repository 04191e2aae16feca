package server

import (
	"sync"
)

// PresenceRegistry tracks which users currently have at least one live
// connection session. It is the single source of truth for online status:
// a user is online iff their tracked session set is non-empty.
type PresenceRegistry struct {
	mu       sync.Mutex
	sessions map[int]map[string]struct{}
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		sessions: make(map[int]map[string]struct{}),
	}
}

// RegisterSession adds sessionId to userId's live set and reports whether the
// user transitioned from offline to online.
func (p *PresenceRegistry) RegisterSession(userId int, sessionId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	userSessions, ok := p.sessions[userId]
	if !ok {
		userSessions = make(map[string]struct{})
		p.sessions[userId] = userSessions
	}

	if _, exists := userSessions[sessionId]; exists {
		return false
	}

	userSessions[sessionId] = struct{}{}
	return len(userSessions) == 1
}

// DeregisterSession removes sessionId from userId's live set and reports
// whether the user transitioned from online to offline. Deregistering an
// unknown session is a no-op.
func (p *PresenceRegistry) DeregisterSession(userId int, sessionId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	userSessions, ok := p.sessions[userId]
	if !ok {
		return false
	}

	if _, exists := userSessions[sessionId]; !exists {
		return false
	}

	delete(userSessions, sessionId)
	if len(userSessions) == 0 {
		delete(p.sessions, userId)
		return true
	}

	return false
}

func (p *PresenceRegistry) IsOnline(userId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sessions[userId]) > 0
}

// NumSessions returns the number of live sessions for userId.
func (p *PresenceRegistry) NumSessions(userId int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sessions[userId])
}

// NumOnline returns the number of users with at least one live session.
func (p *PresenceRegistry) NumOnline() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sessions)
}
