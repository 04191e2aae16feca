package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceRegistry_RegisterSession(t *testing.T) {
	p := NewPresenceRegistry()

	assert.False(t, p.IsOnline(1), "expected user to be offline before any session")

	assert.True(t, p.RegisterSession(1, "s1"), "expected first session to transition user online")
	assert.True(t, p.IsOnline(1), "expected user to be online with one session")

	assert.False(t, p.RegisterSession(1, "s2"), "expected second session to not re-transition user")
	assert.Equal(t, 2, p.NumSessions(1), "expected two sessions tracked")

	assert.False(t, p.RegisterSession(1, "s1"), "expected duplicate session id to be a no-op")
	assert.Equal(t, 2, p.NumSessions(1), "expected duplicate registration to not double-count")
}

func TestPresenceRegistry_DeregisterSession(t *testing.T) {
	p := NewPresenceRegistry()

	assert.False(t, p.DeregisterSession(1, "s1"), "expected deregister of unknown user to be a no-op")

	p.RegisterSession(1, "s1")
	p.RegisterSession(1, "s2")

	assert.False(t, p.DeregisterSession(1, "s1"), "expected user to stay online with a remaining session")
	assert.True(t, p.IsOnline(1), "expected user online after closing one of two sessions")

	assert.True(t, p.DeregisterSession(1, "s2"), "expected last session close to transition user offline")
	assert.False(t, p.IsOnline(1), "expected user offline with no sessions")

	assert.False(t, p.DeregisterSession(1, "s2"), "expected repeated deregister to be a no-op")
	assert.False(t, p.IsOnline(1), "expected user to remain offline")
}

func TestPresenceRegistry_RegisterDeregisterBalance(t *testing.T) {
	p := NewPresenceRegistry()

	// a user is online iff registered sessions exceed deregistered ones
	for i := 0; i < 5; i++ {
		p.RegisterSession(1, fmt.Sprintf("s%d", i))
	}
	for i := 0; i < 4; i++ {
		p.DeregisterSession(1, fmt.Sprintf("s%d", i))
	}
	assert.True(t, p.IsOnline(1), "expected user online with one session left")

	p.DeregisterSession(1, "s4")
	assert.False(t, p.IsOnline(1), "expected user offline after last session closed")
	assert.Equal(t, 0, p.NumOnline(), "expected no users online")
}

func TestPresenceRegistry_ConcurrentUsers(t *testing.T) {
	p := NewPresenceRegistry()

	const numUsers = 50
	var wg sync.WaitGroup
	for i := 0; i < numUsers; i++ {
		wg.Add(1)
		go func(userId int) {
			defer wg.Done()
			p.RegisterSession(userId, "a")
			p.RegisterSession(userId, "b")
			p.DeregisterSession(userId, "a")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, numUsers, p.NumOnline(), "expected every user to remain online")
	for i := 0; i < numUsers; i++ {
		assert.True(t, p.IsOnline(i), "expected user %d to be online", i)
		assert.Equal(t, 1, p.NumSessions(i), "expected user %d to have one session", i)
	}
}
