package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/guessrun/internal/effects"
)

const (
	feedBuffer     = 64
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type feedMessage struct {
	Type  string         `json:"type"`
	Event *effects.Event `json:"event,omitempty"`
	View  any            `json:"view,omitempty"`
}

// feed fans session events out to websocket subscribers. Slow subscribers
// miss messages rather than block the session.
type feed struct {
	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

func newFeed() *feed {
	return &feed{subs: make(map[chan []byte]struct{})}
}

func (f *feed) subscribe() (chan []byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false
	}
	ch := make(chan []byte, feedBuffer)
	f.subs[ch] = struct{}{}
	return ch, true
}

func (f *feed) unsubscribe(ch chan []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}

func (f *feed) publish(ev effects.Event) {
	data, err := json.Marshal(feedMessage{Type: "event", Event: &ev})
	if err != nil {
		return
	}
	f.send(data)
}

func (f *feed) send(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}

// handleFeed streams the session's events over a websocket. The first
// message carries the current view.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("feed upgrade failed for %s: %v", ls.id, err)
		return
	}
	defer conn.Close()

	ls.mu.Lock()
	ch, ok := ls.feed.subscribe()
	initial, err := json.Marshal(feedMessage{Type: "view", View: ls.game.View()})
	ls.mu.Unlock()
	if !ok {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
		return
	}
	defer ls.feed.unsubscribe(ch)
	if err != nil {
		s.logger.Printf("feed marshal failed for %s: %v", ls.id, err)
		return
	}

	// the reader only detects disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
		return
	}

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case data, open := <-ch:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !open {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
