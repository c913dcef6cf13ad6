// Package store defines the session store gateway: the contract this service needs from a
// realtime document store.
//
// Implementations guarantee:
//   - UpdateSessionStatus only moves a session one step forward. Repeating a transition that
//     already happened is a no-op that reports changed=false; skipping a state is rejected.
//     StartedAt is stamped with the store's clock on waiting -> in-progress.
//   - AppendPlayer is idempotent on Player.IdentityKey and rejects new identities unless the
//     session is waiting.
//   - UpdateParticipant never lowers CurrentScore and stamps GameEndedAt at most once.
//     A second finish is a silent no-op.
//   - Subscriptions deliver full snapshots, never deltas: one right after subscribing and one
//     after every change. Intermediate snapshots may be skipped, and callbacks of a single
//     subscription never run concurrently.
package store

import (
	"context"

	"github.com/victornm/flashgame/internal/domain"
)

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

type Gateway interface {
	CreateSession(ctx context.Context, c domain.SessionConfig) (string, error)
	GetSession(ctx context.Context, gameID string) (domain.GameSession, error)
	SubscribeSession(ctx context.Context, gameID string, onChange func(domain.GameSession)) (Unsubscribe, error)
	UpdateSessionStatus(ctx context.Context, gameID string, status domain.Status) (changed bool, err error)
	AppendPlayer(ctx context.Context, gameID string, p domain.Player) (participantID string, err error)

	CreateParticipant(ctx context.Context, gameID string, info domain.ParticipantInfo) (string, error)
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	UpdateParticipant(ctx context.Context, participantID string, u domain.ParticipantUpdate) error
	SubscribeParticipants(ctx context.Context, gameID string, onChange func([]domain.Participant)) (Unsubscribe, error)

	GetQuestionSet(ctx context.Context, gameQuestionID string) (domain.QuestionSet, error)
	CreateQuestionSet(ctx context.Context, qs domain.QuestionSet) (string, error)
}
