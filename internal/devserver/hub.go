package devserver

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stueble/guestsync/internal/protocol"
)

// session is one connected push channel peer.
type session struct {
	conn *websocket.Conn
	enc  protocol.Encoding

	mu        sync.Mutex
	nextResID uint64
	pending   map[uint64]string // resId -> event awaiting acknowledgment
}

func newSession(conn *websocket.Conn, enc protocol.Encoding) *session {
	return &session{conn: conn, enc: enc, pending: make(map[uint64]string)}
}

func (s *session) send(msg protocol.ServerMessage) error {
	data, err := protocol.EncodeServer(s.enc, msg)
	if err != nil {
		return err
	}

	frameType := websocket.BinaryMessage
	if s.enc == protocol.Text {
		frameType = websocket.TextMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(frameType, data)
}

// allocResID reserves the next delivery-tracking id for an event frame.
func (s *session) allocResID(event string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextResID++
	s.pending[s.nextResID] = event
	return s.nextResID
}

func (s *session) acknowledge(resID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[resID]; !ok {
		return false
	}
	delete(s.pending, resID)
	return true
}

func (s *session) unacknowledged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// hub fans server events out to every connected session.
type hub struct {
	mu       sync.Mutex
	sessions map[*session]struct{}
	log      zerolog.Logger
}

func newHub(log zerolog.Logger) *hub {
	return &hub{sessions: make(map[*session]struct{}), log: log}
}

func (h *hub) add(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

func (h *hub) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// broadcast delivers one event to every session. build receives the
// session's freshly allocated resId so each peer acknowledges its own
// delivery.
func (h *hub) broadcast(event string, build func(resID *uint64) protocol.ServerMessage) {
	h.mu.Lock()
	peers := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		peers = append(peers, s)
	}
	h.mu.Unlock()

	for _, s := range peers {
		resID := s.allocResID(event)
		if err := s.send(build(&resID)); err != nil {
			h.log.Debug().Err(err).Str("event", event).Msg("broadcast to dead session")
		}
	}
}

// push delivers an untracked frame (no resId) to every session.
func (h *hub) push(msg protocol.ServerMessage) {
	h.mu.Lock()
	peers := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		peers = append(peers, s)
	}
	h.mu.Unlock()

	for _, s := range peers {
		if err := s.send(msg); err != nil {
			h.log.Debug().Err(err).Msg("push to dead session")
		}
	}
}
