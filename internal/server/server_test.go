package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/codearena/realtime/internal/database"
	"github.com/codearena/realtime/internal/stats"
	"github.com/codearena/realtime/internal/testutil"
	"github.com/codearena/realtime/internal/types"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyCredential(ctx context.Context, token string) (types.User, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(types.User), args.Error(1)
}

func newTestRealtimeServer(t *testing.T, db database.Repository, verifier CredentialVerifier, su *stats.MockStatsUpdater) *RealtimeServer {
	t.Helper()

	su.On("RegisterMetric", mock.Anything).Return(nil)

	rs, err := NewRealtimeServer(testutil.TestLogger(t), db, db, verifier, su)
	assert.NoError(t, err, "expected no error creating realtime server")

	return rs
}

func newTestClient(t *testing.T, rs *RealtimeServer) *Client {
	t.Helper()

	c, err := NewClient(nil, rs, rs.log)
	assert.NoError(t, err, "expected no error creating client")

	return c
}

func recvMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()

	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("expected a queued message")
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()

	select {
	case msg := <-c.send:
		t.Fatalf("expected no queued message, got %+v", msg)
	default:
	}
}

func TestNewRealtimeServer(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	db := &database.MockRepository{}

	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)

	assert.NotNil(t, rs.presence, "expected presence registry to be initialized")
	assert.NotNil(t, rs.broadcaster, "expected broadcaster to be initialized")
	assert.NotNil(t, rs.clients, "expected clients map to be initialized")
	assert.NotNil(t, rs.userMap, "expected user map to be initialized")
	assert.NotNil(t, rs.teams, "expected teams map to be initialized")
	assert.NotNil(t, rs.publishChan, "expected publish channel to be initialized")

	su.AssertNumberOfCalls(t, "RegisterMetric", 5)
}

func TestRegisterAndDeregisterClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Return(nil)
	su.On("Decr", mock.Anything).Return(nil)
	db := &database.MockRepository{}

	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)

	c := newTestClient(t, rs)
	rs.RegisterClient(c)
	assert.Contains(t, rs.clients, c, "expected client to be registered")
	su.AssertCalled(t, "Incr", "NumActiveConnections")

	rs.DeregisterClient(c)
	assert.NotContains(t, rs.clients, c, "expected client to be deregistered")
	su.AssertCalled(t, "Decr", "NumActiveConnections")

	// repeated deregistration is a no-op
	rs.DeregisterClient(c)
	su.AssertNumberOfCalls(t, "Decr", 1)
}

func TestBindSession(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Return(nil)
	db := &database.MockRepository{}

	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)

	c := newTestClient(t, rs)
	c.user = types.User{Id: 1, Username: "test-user"}
	rs.RegisterClient(c)
	rs.bindSession(c)

	assert.True(t, c.authed, "expected client to be marked authenticated")
	assert.True(t, rs.IsOnline(1), "expected user to be online after binding")
	assert.Contains(t, rs.userMap[1], c, "expected client in the user map")
	su.AssertCalled(t, "Incr", "NumOnlineUsers")

	select {
	case tr := <-rs.broadcaster.transitions:
		assert.Equal(t, presenceTransition{userId: 1, online: true}, tr, "expected online transition to be enqueued")
	default:
		t.Fatal("expected a presence transition")
	}
}

func TestBindSession_UnregisteredClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	db := &database.MockRepository{}

	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)

	c := newTestClient(t, rs)
	c.user = types.User{Id: 1}
	rs.bindSession(c)

	assert.False(t, c.authed, "expected bind to be a no-op for a torn down session")
	assert.False(t, rs.IsOnline(1), "expected user to remain offline")
}

func TestMultiSessionPresence(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Return(nil)
	su.On("Decr", mock.Anything).Return(nil)
	db := &database.MockRepository{}

	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)

	c1 := newTestClient(t, rs)
	c1.user = types.User{Id: 1}
	c2 := newTestClient(t, rs)
	c2.user = types.User{Id: 1}

	rs.RegisterClient(c1)
	rs.bindSession(c1)
	rs.RegisterClient(c2)
	rs.bindSession(c2)

	// only the first session produces an online transition
	assert.True(t, rs.IsOnline(1), "expected user online with two sessions")
	assert.Len(t, rs.broadcaster.transitions, 1, "expected a single online transition")
	<-rs.broadcaster.transitions

	rs.DeregisterClient(c1)
	assert.True(t, rs.IsOnline(1), "expected user to stay online with a remaining session")
	assert.Len(t, rs.broadcaster.transitions, 0, "expected no transition while a session remains")

	rs.DeregisterClient(c2)
	assert.False(t, rs.IsOnline(1), "expected user offline after last session closed")

	select {
	case tr := <-rs.broadcaster.transitions:
		assert.Equal(t, presenceTransition{userId: 1, online: false}, tr, "expected offline transition to be enqueued")
	default:
		t.Fatal("expected a presence transition")
	}
}

func TestAddAndRemoveTeam(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Return(nil)
	su.On("Decr", mock.Anything).Return(nil)
	db := &database.MockRepository{}

	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)

	tc := newTeamChannel(5, rs)
	rs.addTeam(5, tc)

	got, ok := rs.getTeam(5)
	assert.True(t, ok, "expected team channel to be registered")
	assert.Equal(t, tc, got, "expected registered team channel to match")
	su.AssertCalled(t, "Incr", "NumActiveTeams")

	rs.removeTeam(5)
	_, ok = rs.getTeam(5)
	assert.False(t, ok, "expected team channel to be removed")
	su.AssertCalled(t, "Decr", "NumActiveTeams")

	// removing an unknown team does not decrement
	rs.removeTeam(5)
	su.AssertNumberOfCalls(t, "Decr", 1)
}

func TestShutdown(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	db := &database.MockRepository{}

	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)
	go rs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, rs.Shutdown(ctx), "expected clean shutdown")
}

func TestShutdown_ContextExpired(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	db := &database.MockRepository{}

	// server is not running, so the stop request cannot be delivered
	rs := newTestRealtimeServer(t, db, &mockVerifier{}, su)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, rs.Shutdown(ctx), context.Canceled, "expected shutdown to report the context error")
}
