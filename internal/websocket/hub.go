package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrClientClosed is returned when sending to a closed client
	ErrClientClosed = errors.New("client is closed")
	// ErrSlowConsumer is returned when a client's send queue is full
	ErrSlowConsumer = errors.New("client send queue is full")
)

// DefaultMaxConnectionsPerMember bounds the open tabs and devices of one member
const DefaultMaxConnectionsPerMember = 5

// ClientInterface is what the hub needs from a connection
type ClientInterface interface {
	ID() string
	MemberID() int32
	Send(data []byte) error
	Close() error
}

// Hub routes events to the open connections of each member. Connections are
// kept in connect order; when a member exceeds the limit the oldest one is
// closed. Broadcast never blocks: a client whose queue is full is dropped.
type Hub struct {
	mu           sync.RWMutex
	members      map[int32][]ClientInterface
	maxPerMember int
}

// NewHub creates a hub with DefaultMaxConnectionsPerMember
func NewHub() *Hub {
	return NewHubWithLimit(DefaultMaxConnectionsPerMember)
}

// NewHubWithLimit creates a hub allowing maxPerMember connections per member.
// A value below 1 means no limit.
func NewHubWithLimit(maxPerMember int) *Hub {
	return &Hub{
		members:      make(map[int32][]ClientInterface),
		maxPerMember: maxPerMember,
	}
}

// Register adds client under its member, evicting the member's oldest
// connection if the limit is reached
func (h *Hub) Register(client ClientInterface) {
	memberID := client.MemberID()

	h.mu.Lock()
	clients := append(h.members[memberID], client)
	var evicted []ClientInterface
	if h.maxPerMember > 0 && len(clients) > h.maxPerMember {
		overflow := len(clients) - h.maxPerMember
		evicted = append(evicted, clients[:overflow]...)
		clients = append([]ClientInterface(nil), clients[overflow:]...)
	}
	h.members[memberID] = clients
	h.mu.Unlock()

	for _, old := range evicted {
		old.Close()
		log.Info().Int32("member_id", memberID).Str("client_id", old.ID()).Msg("WebSocket client evicted, connection limit reached")
	}

	log.Debug().Int32("member_id", memberID).Str("client_id", client.ID()).Msg("WebSocket client registered")
}

// Unregister removes client from the hub. Unknown clients are ignored.
func (h *Hub) Unregister(client ClientInterface) {
	if h.remove(client.MemberID(), client.ID()) {
		log.Debug().Int32("member_id", client.MemberID()).Str("client_id", client.ID()).Msg("WebSocket client unregistered")
	}
}

func (h *Hub) remove(memberID int32, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.members[memberID]
	for i, c := range clients {
		if c.ID() != clientID {
			continue
		}
		remaining := append(append([]ClientInterface(nil), clients[:i]...), clients[i+1:]...)
		if len(remaining) == 0 {
			delete(h.members, memberID)
		} else {
			h.members[memberID] = remaining
		}
		return true
	}
	return false
}

// Broadcast queues event on every connection of memberID. Members without an
// open connection simply miss the push and read the inbox later.
func (h *Hub) Broadcast(memberID int32, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().Err(err).Int32("member_id", memberID).Str("event_type", event.Type).Msg("Failed to serialize event")
		return
	}

	h.mu.RLock()
	clients := append([]ClientInterface(nil), h.members[memberID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		err := c.Send(data)
		if err == nil {
			continue
		}
		h.remove(memberID, c.ID())
		c.Close()
		log.Warn().Err(err).Int32("member_id", memberID).Str("client_id", c.ID()).Msg("WebSocket client dropped")
	}

	if len(clients) > 0 {
		log.Debug().Int32("member_id", memberID).Str("event_type", event.Type).Int("client_count", len(clients)).Msg("Broadcast event")
	}
}

// Shutdown closes every connection. Used on server exit.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	members := h.members
	h.members = make(map[int32][]ClientInterface)
	h.mu.Unlock()

	closed := 0
	for _, clients := range members {
		for _, c := range clients {
			c.Close()
			closed++
		}
	}
	log.Info().Int("client_count", closed).Msg("WebSocket hub shut down")
}

// ClientCount returns the number of open connections of a member
func (h *Hub) ClientCount(memberID int32) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[memberID])
}

// TotalClientCount returns the number of open connections across all members
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.members {
		total += len(clients)
	}
	return total
}
