// Package join registers players into waiting game sessions.
package join

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/event"
	"github.com/victornm/flashgame/internal/store"
)

type Config struct {
	Store    store.Gateway
	EventBus *event.Bus
}

// Coordinator admits identities into sessions. Concurrent joins of the same identity into the
// same game share one in-flight registration; joins racing from other instances are settled by
// the store's idempotent append.
type Coordinator struct {
	st    store.Gateway
	eb    *event.Bus
	group singleflight.Group
}

func NewCoordinator(c Config) *Coordinator {
	return &Coordinator{
		st: c.Store,
		eb: c.EventBus,
	}
}

type JoinRequest struct {
	GameID   string
	Identity domain.Identity
}

type JoinResponse struct {
	ParticipantID string `json:"participantId"`
	// Rejoined is set when the identity was already a player of the game.
	Rejoined bool `json:"rejoined"`
}

// Join registers the identity as a player of a waiting game and returns its participant id.
// Joining again with the same identity returns the same participant id.
func (c *Coordinator) Join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	req.Identity.Username = strings.TrimSpace(req.Identity.Username)
	if req.GameID == "" {
		return nil, errors.InvalidArgument("game id is required")
	}
	if req.Identity.Username == "" {
		return nil, errors.InvalidArgument("username is required")
	}

	key := req.GameID + "/" + req.Identity.Key()
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.join(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	resp := *v.(*JoinResponse)
	return &resp, nil
}

func (c *Coordinator) join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	ss, err := c.st.GetSession(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	if ss.Status != domain.StatusWaiting {
		return nil, errors.SessionNotJoinable(req.GameID)
	}

	identityKey := req.Identity.Key()
	if p, ok := ss.PlayerByIdentity(identityKey); ok {
		return &JoinResponse{ParticipantID: p.ParticipantID, Rejoined: true}, nil
	}

	pid, err := c.st.CreateParticipant(ctx, req.GameID, domain.ParticipantInfo{
		Username:    req.Identity.Username,
		IdentityKey: identityKey,
	})
	if err != nil {
		return nil, err
	}

	player := domain.Player{
		ParticipantID:  pid,
		IdentityKey:    identityKey,
		Username:       req.Identity.Username,
		ProfilePicture: req.Identity.ProfilePicture,
	}
	canonical, err := c.st.AppendPlayer(ctx, req.GameID, player)
	if err != nil {
		return nil, err
	}

	if canonical != pid {
		// Another instance registered this identity first. The record created here is never
		// listed as a player, so it takes no part in completion or ranking.
		slog.InfoContext(ctx, "join: identity already registered elsewhere",
			"game_id", req.GameID, "participant_id", canonical, "orphan_participant_id", pid)
		return &JoinResponse{ParticipantID: canonical, Rejoined: true}, nil
	}

	c.eb.Publish(ctx, domain.EventParticipantJoined{
		GameID: req.GameID,
		Player: player,
	})

	return &JoinResponse{ParticipantID: pid}, nil
}
