package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/event"
)

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// forwardNotifications relays game events to the game's Redis channel so clients connected to
// any instance can follow the game.
func (a *API) forwardNotifications() {
	forward(a, func(e domain.EventParticipantJoined) string { return e.GameID })
	forward(a, func(e domain.EventGameStarted) string { return e.Session.GameID })
	forward(a, func(e domain.EventScoreUpdated) string { return e.GameID })
	forward(a, func(e domain.EventParticipantFinished) string { return e.GameID })
	forward(a, func(e domain.EventGameCompleted) string { return e.GameID })
	forward(a, func(e domain.EventStandingsUpdated) string { return e.Standings.GameID })
}

func forward[E event.Event](a *API, gameID func(E) string) {
	event.On(a.eb, func(ctx context.Context, e E) error {
		return a.publishNotification(ctx, gameID(e), e.Name(), e)
	})
}

func (a *API) publishNotification(ctx context.Context, gameID, name string, data any) error {
	n := Notification{
		Event: name,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", name, err)
	}

	return a.redis.Publish(ctx, a.channel(gameID), b).Err()
}

func (a *API) channel(gameID string) string {
	return fmt.Sprintf("%s:game:%s", a.prefix, gameID)
}
