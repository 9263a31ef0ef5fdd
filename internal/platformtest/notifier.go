package platformtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"practicum/pkg/types"
)

// Frame is one inbound frame seen by the notifier, or a disconnect marker.
type Frame struct {
	Conn   int
	Event  string
	UserID int64
}

// EventDisconnect marks a socket closing in the frame log.
const EventDisconnect = "disconnect"

type peer struct {
	id      int
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Notifier is the websocket push service with per-user rooms.
// FUNCTIONAL DISCOVERY: Rooms are named user_{id}; a socket only receives
// verdicts after it has sent join_submission_room for that user
type Notifier struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	peers    map[int]*peer
	nextPeer int
	rooms    map[string]map[int]*peer
	frames   []Frame
	onJoin   map[int64][][]byte
	refuse   bool
}

func NewNotifier() *Notifier {
	n := &Notifier{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		peers:    make(map[int]*peer),
		rooms:    make(map[string]map[int]*peer),
		onJoin:   make(map[int64][][]byte),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", n.handle)
	n.server = httptest.NewServer(mux)
	return n
}

// URL is the websocket endpoint.
func (n *Notifier) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http") + "/ws"
}

func roomName(userID int64) string { return fmt.Sprintf("user_%d", userID) }

// Refuse makes new handshakes fail with 503 until called with false.
func (n *Notifier) Refuse(refuse bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refuse = refuse
}

func (n *Notifier) handle(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	refuse := n.refuse
	n.mu.Unlock()
	if refuse {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	n.mu.Lock()
	n.nextPeer++
	p := &peer{id: n.nextPeer, conn: conn}
	n.peers[p.id] = p
	n.mu.Unlock()

	defer n.drop(p)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		var room types.RoomRequest
		_ = json.Unmarshal(env.Data, &room)

		n.mu.Lock()
		n.frames = append(n.frames, Frame{Conn: p.id, Event: env.Event, UserID: room.UserID})
		var queued [][]byte
		switch env.Event {
		case types.EventJoinSubmissionRoom:
			name := roomName(room.UserID)
			if n.rooms[name] == nil {
				n.rooms[name] = make(map[int]*peer)
			}
			n.rooms[name][p.id] = p
			queued = n.onJoin[room.UserID]
			delete(n.onJoin, room.UserID)
		case types.EventLeaveSubmissionRoom:
			delete(n.rooms[roomName(room.UserID)], p.id)
		}
		n.mu.Unlock()

		for _, frame := range queued {
			_ = p.write(frame)
		}
	}
}

func (n *Notifier) drop(p *peer) {
	n.mu.Lock()
	if _, ok := n.peers[p.id]; ok {
		delete(n.peers, p.id)
		n.frames = append(n.frames, Frame{Conn: p.id, Event: EventDisconnect})
	}
	for _, members := range n.rooms {
		delete(members, p.id)
	}
	n.mu.Unlock()
	_ = p.conn.Close()
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(types.Envelope{Event: event, Data: data})
}

// Push sends an event to every socket in the user's room.
func (n *Notifier) Push(userID int64, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	return n.PushRaw(userID, frame)
}

// PushRaw sends raw bytes to the user's room, for malformed-frame tests.
func (n *Notifier) PushRaw(userID int64, frame []byte) error {
	n.mu.Lock()
	members := make([]*peer, 0, len(n.rooms[roomName(userID)]))
	for _, p := range n.rooms[roomName(userID)] {
		members = append(members, p)
	}
	n.mu.Unlock()

	if len(members) == 0 {
		return fmt.Errorf("no socket in room %s", roomName(userID))
	}
	// a socket that is being torn down may still be listed; one delivery is enough
	var lastErr error
	delivered := 0
	for _, p := range members {
		if err := p.write(frame); err != nil {
			lastErr = err
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return lastErr
	}
	return nil
}

// PushOnJoin queues an event that is written right after the next join for
// userID is processed, before any other frame to that socket.
func (n *Notifier) PushOnJoin(userID int64, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onJoin[userID] = append(n.onJoin[userID], frame)
	return nil
}

// DropAll closes every server-side socket to simulate a network loss.
func (n *Notifier) DropAll() {
	n.mu.Lock()
	peers := make([]*peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close()
	}
}

// Frames returns the frame log in arrival order.
func (n *Notifier) Frames() []Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Frame, len(n.frames))
	copy(out, n.frames)
	return out
}

// Count returns how many frames of event were received for userID.
func (n *Notifier) Count(event string, userID int64) int {
	count := 0
	for _, f := range n.Frames() {
		if f.Event == event && f.UserID == userID {
			count++
		}
	}
	return count
}

// RoomSize returns how many sockets are joined to the user's room.
func (n *Notifier) RoomSize(userID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.rooms[roomName(userID)])
}

// WaitFor polls cond against the frame log until it holds or timeout passes.
func (n *Notifier) WaitFor(timeout time.Duration, cond func(frames []Frame) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond(n.Frames()) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close drops every socket and stops the server.
func (n *Notifier) Close() {
	n.DropAll()
	n.server.Close()
}
