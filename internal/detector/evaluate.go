package detector

import (
	"time"

	"github.com/victornm/flashgame/internal/domain"
)

// Decision is the outcome of evaluating a game snapshot.
type Decision struct {
	Complete bool
	Trigger  domain.CompletionTrigger
}

// Evaluate decides from full snapshots whether an in-progress game is over. Only participants
// listed as players of the session count. The game is over once every player has finished and
// at least one has, or once grace has passed beyond the session deadline.
func Evaluate(ss domain.GameSession, ps []domain.Participant, now time.Time, grace time.Duration) Decision {
	if ss.Status != domain.StatusInProgress {
		return Decision{}
	}

	byID := make(map[string]domain.Participant, len(ps))
	for _, p := range ps {
		byID[p.ParticipantID] = p
	}

	allFinished, hasStarted := true, false
	for _, pl := range ss.Players {
		p, ok := byID[pl.ParticipantID]
		if !ok || !p.Finished() {
			allFinished = false
			continue
		}
		hasStarted = true
	}

	if allFinished && hasStarted {
		return Decision{Complete: true, Trigger: domain.TriggerAllFinished}
	}

	if deadline, ok := ss.Deadline(); ok && !now.Before(deadline.Add(grace)) {
		return Decision{Complete: true, Trigger: domain.TriggerDeadline}
	}

	return Decision{}
}
