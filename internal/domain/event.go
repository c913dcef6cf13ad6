package domain

const (
	EventNameParticipantJoined   = "participant.joined"
	EventNameGameStarted         = "game.started"
	EventNameScoreUpdated        = "score.updated"
	EventNameParticipantFinished = "participant.finished"
	EventNameGameCompleted       = "game.completed"
	EventNameProgressDropped     = "progress.dropped"
	EventNameStandingsUpdated    = "standings.updated"
)

type EventParticipantJoined struct {
	GameID string `json:"gameId"`
	Player Player `json:"player"`
}

func (EventParticipantJoined) Name() string { return EventNameParticipantJoined }

type EventGameStarted struct {
	Session GameSession `json:"session"`
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

type EventScoreUpdated struct {
	GameID        string `json:"gameId"`
	ParticipantID string `json:"participantId"`
	Score         int    `json:"score"`
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventParticipantFinished struct {
	GameID        string `json:"gameId"`
	ParticipantID string `json:"participantId"`
	Score         int    `json:"score"`
}

func (EventParticipantFinished) Name() string { return EventNameParticipantFinished }

type EventGameCompleted struct {
	GameID  string            `json:"gameId"`
	Trigger CompletionTrigger `json:"trigger"`
}

func (EventGameCompleted) Name() string { return EventNameGameCompleted }

// EventProgressDropped is published when a participant update could not be written.
type EventProgressDropped struct {
	GameID        string `json:"gameId"`
	ParticipantID string `json:"participantId"`
	Error         string `json:"error"`
}

func (EventProgressDropped) Name() string { return EventNameProgressDropped }

type EventStandingsUpdated struct {
	Standings Standings `json:"standings"`
}

func (EventStandingsUpdated) Name() string { return EventNameStandingsUpdated }
