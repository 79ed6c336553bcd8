package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/fafmau/quizd/internal/domain"
)

// leaderboardStream fans leaderboard snapshots out to websocket clients.
// Slow clients get stale frames replaced rather than blocking the
// broadcast.
type leaderboardStream struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newLeaderboardStream() *leaderboardStream {
	return &leaderboardStream{
		subs: make(map[chan []byte]struct{}),
	}
}

func (s *leaderboardStream) subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 4)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *leaderboardStream) broadcast(l domain.Leaderboard) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- data
		}
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serveLeaderboardWS streams leaderboard snapshots to the client: the
// current view immediately, then one frame per published update.
func (a *API) serveLeaderboardWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "api: ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := a.stream.subscribe()
	defer cancel()

	if l, err := a.leaderboard.GetLeaderboard(c.Request.Context()); err == nil {
		if data, err := json.Marshal(l); err == nil {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain reads so close frames are processed.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
