package server

import (
	"log"

	"github.com/codearena/realtime/internal/database"
)

type presenceTransition struct {
	userId int
	online bool
}

// Broadcaster pushes presence change notifications to the connected sessions
// of a user's accepted friends and teammates. Transitions are drained by a
// single goroutine, so every recipient observes any one user's transitions in
// the order they happened.
type Broadcaster struct {
	log         *log.Logger
	db          database.Repository
	rs          *RealtimeServer
	transitions chan presenceTransition
	stop        chan struct{}
	done        chan struct{}
}

func newBroadcaster(rs *RealtimeServer) *Broadcaster {
	return &Broadcaster{
		log:         rs.log,
		db:          rs.db,
		rs:          rs,
		transitions: make(chan presenceTransition, 512),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// OnPresenceChange enqueues a transition for delivery. Enqueueing never
// blocks; presence is a re-computable signal, so a transition dropped under
// extreme load is recovered by the client's next full state fetch.
func (b *Broadcaster) OnPresenceChange(userId int, online bool) {
	select {
	case b.transitions <- presenceTransition{userId: userId, online: online}:
	default:
		b.log.Printf("presence queue full, dropping transition for user %d", userId)
		b.rs.stats.Incr("NumDroppedPresenceUpdates")
	}
}

func (b *Broadcaster) run() {
	for {
		select {
		case tr := <-b.transitions:
			b.notify(tr)
		case <-b.stop:
			close(b.done)
			return
		}
	}
}

func (b *Broadcaster) notify(tr presenceTransition) {
	interested := make(map[int]struct{})

	friends, err := b.db.GetAcceptedFriends(tr.userId)
	if err != nil {
		b.log.Printf("fetch friends of user %d: %v", tr.userId, err)
	}
	for _, f := range friends {
		interested[f.Id] = struct{}{}
	}

	teammates, err := b.db.GetTeammates(tr.userId)
	if err != nil {
		b.log.Printf("fetch teammates of user %d: %v", tr.userId, err)
	}
	for _, id := range teammates {
		interested[id] = struct{}{}
	}

	delete(interested, tr.userId)

	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &Presence{
				UserId: tr.userId,
				Online: tr.online,
			},
		},
	}

	for id := range interested {
		for _, c := range b.rs.clientsForUser(id) {
			c.queueMessage(msg)
		}
	}
}
