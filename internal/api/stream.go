package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/flashgame/internal/domain"
)

const (
	streamWriteTimeout = 5 * time.Second

	streamSession      = "session"
	streamParticipants = "participants"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamGame pushes the game's session and participants snapshots over a websocket until the
// client goes away. A slow client only ever receives the latest snapshot of each kind.
func (a *API) StreamGame(c *gin.Context) {
	gameID := c.Param("id")
	if _, err := a.st.GetSession(c, gameID); err != nil {
		renderError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c, "api: websocket upgrade failed", "error", err, "game_id", gameID)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := newSnapshots()

	unsubscribeSession, err := a.st.SubscribeSession(ctx, gameID, func(ss domain.GameSession) {
		q.put(streamSession, ss)
	})
	if err != nil {
		slog.ErrorContext(ctx, "api: subscribe session failed", "error", err, "game_id", gameID)
		return
	}
	defer unsubscribeSession()

	unsubscribeParticipants, err := a.st.SubscribeParticipants(ctx, gameID, func(ps []domain.Participant) {
		q.put(streamParticipants, ps)
	})
	if err != nil {
		slog.ErrorContext(ctx, "api: subscribe participants failed", "error", err, "game_id", gameID)
		return
	}
	defer unsubscribeParticipants()

	// The client only talks to close the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteTimeout))
			return
		case <-q.ready:
			for _, n := range q.take() {
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(n); err != nil {
					slog.DebugContext(ctx, "api: websocket write failed", "error", err, "game_id", gameID)
					return
				}
			}
		}
	}
}

// snapshots keeps the latest undelivered snapshot of each kind in arrival order.
type snapshots struct {
	mu      sync.Mutex
	order   []string
	pending map[string]any
	ready   chan struct{}
}

func newSnapshots() *snapshots {
	return &snapshots{
		pending: make(map[string]any),
		ready:   make(chan struct{}, 1),
	}
}

func (s *snapshots) put(kind string, data any) {
	s.mu.Lock()
	if _, ok := s.pending[kind]; !ok {
		s.order = append(s.order, kind)
	}
	s.pending[kind] = data
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *snapshots) take() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.order))
	for _, kind := range s.order {
		out = append(out, Notification{Event: kind, Data: s.pending[kind]})
	}
	s.order = s.order[:0]
	clear(s.pending)

	return out
}
