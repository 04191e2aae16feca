package server

import (
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codearena/realtime/internal/database"
	"github.com/codearena/realtime/internal/types"
)

const (
	maxContentLength = 1000
	idleTeamTimeout  = time.Minute
)

// TeamChannel fans a member's message out to the team's other connected
// sessions. A single goroutine per team serializes sends, so recipients see
// messages in persistence order. The channel unloads itself after a period
// with no traffic.
type TeamChannel struct {
	id        int
	rs        *RealtimeServer
	log       *log.Logger
	sendChan  chan *ClientMessage
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newTeamChannel(id int, rs *RealtimeServer) *TeamChannel {
	return &TeamChannel{
		id:       id,
		rs:       rs,
		log:      rs.log,
		sendChan: make(chan *ClientMessage, 256),
		exit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *TeamChannel) start() {
	t.log.Printf("starting channel for team %d", t.id)
	t.killTimer = time.NewTimer(idleTeamTimeout)

	for {
		select {
		case msg := <-t.sendChan:
			t.handleSend(msg)
			t.killTimer.Reset(idleTeamTimeout)
		case <-t.killTimer.C:
			t.log.Printf("channel for team %d idle, requesting unload", t.id)
			select {
			case t.rs.unloadTeamChan <- t.id:
			default:
			}
		case <-t.exit:
			// a publish routed before the unload request may still be queued;
			// drain it so the sender always gets a response
			for {
				select {
				case msg := <-t.sendChan:
					t.handleSend(msg)
				default:
					close(t.done)
					return
				}
			}
		}
	}
}

// handleSend validates, persists and fans out a single message. Persistence
// precedes visibility: nothing is delivered unless the durable write
// succeeded. Fan-out is best-effort and never blocks the sender's
// acknowledgment.
func (t *TeamChannel) handleSend(msg *ClientMessage) {
	c := msg.client

	content := strings.TrimSpace(msg.Publish.Content)
	if content == "" || utf8.RuneCountInString(content) > maxContentLength {
		c.queueMessage(ErrInvalidContent(msg.Id))
		return
	}

	member, err := t.rs.membership.IsTeamMember(c.user.Id, t.id)
	if err != nil {
		t.log.Printf("membership check for team %d: %v", t.id, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}
	if !member {
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	dbMsg, err := t.rs.db.CreateMessage(database.CreateMessageParams{
		TeamId:    t.id,
		AccountId: c.user.Id,
		Content:   content,
	})
	if err != nil {
		t.log.Printf("persist message for team %d: %v", t.id, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	wireMsg := &types.Message{
		Id:        dbMsg.Id,
		SeqId:     dbMsg.SeqId,
		TeamId:    t.id,
		UserId:    c.user.Id,
		Content:   dbMsg.Content,
		Timestamp: dbMsg.CreatedAt,
	}

	// ack the sender with the persisted message before fan-out
	c.queueMessage(NoErrOK(msg.Id, wireMsg))
	t.rs.stats.Incr("NumMessagesSent")

	members, err := t.rs.membership.GetTeamMembers(t.id)
	if err != nil {
		t.log.Printf("fetch members for team %d: %v", t.id, err)
		return
	}

	push := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: dbMsg.CreatedAt,
		},
		Message: wireMsg,
	}

	for _, m := range members {
		for _, client := range t.rs.clientsForUser(m.Id) {
			if client == c {
				// the sending session already has the message via its ack
				continue
			}

			client.queueMessage(push)
		}
	}
}
