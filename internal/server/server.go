package server

import (
	"context"
	"log"
	"sync"

	"github.com/codearena/realtime/internal/database"
	"github.com/codearena/realtime/internal/stats"
	"github.com/codearena/realtime/internal/types"
)

// MembershipSource provides the team membership snapshot consulted at send
// and fan-out time. Satisfied by the repository directly or by a short-TTL
// cache in front of it.
type MembershipSource interface {
	IsTeamMember(accountId, teamId int) (bool, error)
	GetTeamMembers(teamId int) ([]database.Account, error)
}

// CredentialVerifier validates a bearer credential presented over the wire
// and resolves it to a user identity.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (types.User, error)
}

type stopReq struct {
	done chan struct{}
}

// RealtimeServer is the connection gateway: it owns the set of live sessions,
// the presence registry derived from them, the presence broadcaster and the
// per-team fan-out channels.
type RealtimeServer struct {
	log         *log.Logger
	db          database.Repository
	membership  MembershipSource
	verifier    CredentialVerifier
	stats       stats.StatsProvider
	presence    *PresenceRegistry
	broadcaster *Broadcaster

	clients     map[*Client]struct{}
	userMap     map[int]map[*Client]struct{}
	clientsLock sync.Mutex

	teams          map[int]*TeamChannel
	teamsLock      sync.RWMutex
	publishChan    chan *ClientMessage
	unloadTeamChan chan int
	stop           chan stopReq
}

func NewRealtimeServer(logger *log.Logger, db database.Repository, membership MembershipSource, verifier CredentialVerifier, su stats.StatsProvider) (*RealtimeServer, error) {
	rs := &RealtimeServer{
		log:            logger,
		db:             db,
		membership:     membership,
		verifier:       verifier,
		stats:          su,
		presence:       NewPresenceRegistry(),
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		teams:          make(map[int]*TeamChannel),
		publishChan:    make(chan *ClientMessage, 256),
		unloadTeamChan: make(chan int),
		stop:           make(chan stopReq),
	}
	rs.broadcaster = newBroadcaster(rs)

	for _, metric := range []string{"NumActiveConnections", "NumOnlineUsers", "NumActiveTeams", "NumMessagesSent", "NumDroppedPresenceUpdates"} {
		su.RegisterMetric(metric)
	}

	return rs, nil
}

func (rs *RealtimeServer) Run() {
	go rs.broadcaster.run()

	for {
		select {
		case msg := <-rs.publishChan:
			rs.routePublish(msg)
		case id := <-rs.unloadTeamChan:
			rs.unloadTeam(id)
		case req := <-rs.stop:
			rs.teamsLock.Lock()
			for id, tc := range rs.teams {
				rs.log.Printf("shutting down channel for team %d", id)
				close(tc.exit)
				<-tc.done
				delete(rs.teams, id)
			}
			rs.teamsLock.Unlock()

			close(rs.broadcaster.stop)
			<-rs.broadcaster.done

			close(req.done)
			return
		}
	}
}

// routePublish hands the message to its team's channel, loading the channel
// on first use.
func (rs *RealtimeServer) routePublish(msg *ClientMessage) {
	teamId := msg.Publish.TeamId
	tc, ok := rs.getTeam(teamId)
	if !ok {
		tc = newTeamChannel(teamId, rs)
		rs.addTeam(teamId, tc)
		go tc.start()
	}

	select {
	case tc.sendChan <- msg:
	default:
		rs.log.Printf("send channel full for team %d", teamId)
		msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (rs *RealtimeServer) unloadTeam(id int) {
	tc, ok := rs.getTeam(id)
	if !ok {
		return
	}

	rs.removeTeam(id)
	close(tc.exit)
	<-tc.done
}

func (rs *RealtimeServer) getTeam(id int) (*TeamChannel, bool) {
	rs.teamsLock.RLock()
	defer rs.teamsLock.RUnlock()

	tc, ok := rs.teams[id]
	return tc, ok
}

func (rs *RealtimeServer) addTeam(id int, tc *TeamChannel) {
	rs.teamsLock.Lock()
	defer rs.teamsLock.Unlock()

	rs.teams[id] = tc
	rs.stats.Incr("NumActiveTeams")
}

func (rs *RealtimeServer) removeTeam(id int) {
	rs.teamsLock.Lock()
	defer rs.teamsLock.Unlock()

	if _, ok := rs.teams[id]; ok {
		delete(rs.teams, id)
		rs.stats.Decr("NumActiveTeams")
	}
}

// RegisterClient adds a freshly upgraded connection. The session carries no
// identity yet; it joins the user map only after authenticating.
func (rs *RealtimeServer) RegisterClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	rs.clients[c] = struct{}{}
	rs.stats.Incr("NumActiveConnections")
}

// bindSession associates an authenticated client with its user identity. The
// presence transition and its broadcast enqueue happen under the same lock,
// so transitions for one user reach the broadcaster in registry order.
func (rs *RealtimeServer) bindSession(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	if _, ok := rs.clients[c]; !ok {
		// session already torn down
		return
	}

	c.authed = true
	if rs.userMap[c.user.Id] == nil {
		rs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	rs.userMap[c.user.Id][c] = struct{}{}

	if rs.presence.RegisterSession(c.user.Id, c.sessionId) {
		rs.stats.Incr("NumOnlineUsers")
		rs.broadcaster.OnPresenceChange(c.user.Id, true)
	}
}

// DeregisterClient removes a session. Safe to call more than once for the
// same client; only the first call has any effect.
func (rs *RealtimeServer) DeregisterClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	if _, ok := rs.clients[c]; !ok {
		return
	}

	delete(rs.clients, c)
	rs.stats.Decr("NumActiveConnections")

	if !c.authed {
		return
	}

	if userClients, ok := rs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(rs.userMap, c.user.Id)
		}
	}

	if rs.presence.DeregisterSession(c.user.Id, c.sessionId) {
		rs.stats.Decr("NumOnlineUsers")
		rs.broadcaster.OnPresenceChange(c.user.Id, false)
	}
}

// IsOnline reports whether userId has at least one live authenticated
// session.
func (rs *RealtimeServer) IsOnline(userId int) bool {
	return rs.presence.IsOnline(userId)
}

func (rs *RealtimeServer) clientsForUser(userId int) []*Client {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	clients := make([]*Client, 0, len(rs.userMap[userId]))
	for c := range rs.userMap[userId] {
		clients = append(clients, c)
	}
	return clients
}

func (rs *RealtimeServer) Shutdown(ctx context.Context) error {
	rs.clientsLock.Lock()
	clients := make([]*Client, 0, len(rs.clients))
	for c := range rs.clients {
		clients = append(clients, c)
	}
	rs.clientsLock.Unlock()

	for _, c := range clients {
		c.stopClient()
	}

	req := stopReq{done: make(chan struct{})}
	select {
	case rs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
