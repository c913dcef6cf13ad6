package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a game session. It only moves forward.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

var statusOrder = map[Status]int{
	StatusWaiting:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
}

func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Order returns the position of s in the lifecycle, -1 for unknown statuses.
func (s Status) Order() int {
	if o, ok := statusOrder[s]; ok {
		return o
	}
	return -1
}

type QuizType string

const (
	QuizTypeMatching       QuizType = "matching"
	QuizTypeMultipleChoice QuizType = "multipleChoices"
)

func (q QuizType) Valid() bool {
	return q == QuizTypeMatching || q == QuizTypeMultipleChoice
}

type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// MinTimeLimitSeconds is the shortest time limit a session may be created with.
const MinTimeLimitSeconds = 20

// Identity is who is playing on a client connection. Guests have no UserID.
type Identity struct {
	UserID         string `json:"userId,omitempty"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

func (i Identity) IsGuest() bool { return i.UserID == "" }

// Key identifies the player behind a join request. Guest names only ignore case and
// surrounding or repeated whitespace, so "Alice" and " alice " resolve to the same
// player while "Anna" and "Anna!" stay apart.
func (i Identity) Key() string {
	if !i.IsGuest() {
		return "user:" + i.UserID
	}
	return "guest:" + strings.ToLower(strings.Join(strings.Fields(i.Username), " "))
}

// Player is an entry of GameSession.Players.
type Player struct {
	ParticipantID  string    `json:"participantId"`
	IdentityKey    string    `json:"identityKey"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// SessionConfig is what the host provides when creating a session.
type SessionConfig struct {
	HostUserID       string
	CardSetID        string
	QuizType         QuizType
	QuestionQty      int
	TimeLimitSeconds int
	GameQuestionID   string
}

// GameSession represents one multiplayer room.
type GameSession struct {
	GameID           string     `json:"gameId"`
	HostUserID       string     `json:"hostUserId"`
	CardSetID        string     `json:"cardSetId"`
	QuizType         QuizType   `json:"quizType"`
	QuestionQty      int        `json:"questionQty"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	Status           Status     `json:"status"`
	Players          []Player   `json:"players"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	GameQuestionID   string     `json:"gameQuestionId"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func (s GameSession) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitSeconds) * time.Second
}

// Deadline is the moment the time limit runs out. It is only known once the session started.
func (s GameSession) Deadline() (time.Time, bool) {
	if s.StartedAt == nil {
		return time.Time{}, false
	}
	return s.StartedAt.Add(s.TimeLimit()), true
}

func (s GameSession) PlayerByIdentity(key string) (Player, bool) {
	for _, p := range s.Players {
		if p.IdentityKey == key {
			return p, true
		}
	}
	return Player{}, false
}

// ParticipantInfo is what the join coordinator stores when creating a participant record.
type ParticipantInfo struct {
	Username    string
	IdentityKey string
}

// Participant is one player's progress record within a session.
type Participant struct {
	ParticipantID string     `json:"participantId"`
	GameID        string     `json:"gameId"`
	Username      string     `json:"username"`
	IdentityKey   string     `json:"identityKey"`
	CurrentScore  int        `json:"currentScore"`
	GameEndedAt   *time.Time `json:"gameEndedAt,omitempty"`
}

func (p Participant) Finished() bool { return p.GameEndedAt != nil }

// ParticipantUpdate is a partial write to a participant record. Lower scores than the stored
// one are dropped and Finish only takes effect the first time.
type ParticipantUpdate struct {
	CurrentScore *int
	Finish       bool
}

// Card is one card of a card set, as provided by the card source.
type Card struct {
	ID    string   `json:"id"`
	Front []string `json:"front"`
	Back  []string `json:"back"`
}

// Tile is one face of a card in the matching game.
type Tile struct {
	CardID string   `json:"cardId"`
	Fields []string `json:"fields"`
	Side   Side     `json:"side"`
}

type Option struct {
	OptionID     string   `json:"optionId"`
	AnswerFields []string `json:"answerFields"`
}

type ChoiceQuestion struct {
	QuestionID      string   `json:"questionId"`
	PromptFields    []string `json:"promptFields"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correctOptionId"`
}

// QuestionSet is immutable once created. Exactly one of Questions and Tiles is set,
// depending on QuizType.
type QuestionSet struct {
	GameQuestionID string           `json:"gameQuestionId"`
	QuizType       QuizType         `json:"quizType"`
	Seed           uint64           `json:"seed"`
	Questions      []ChoiceQuestion `json:"questions,omitempty"`
	Tiles          []Tile           `json:"tiles,omitempty"`
}

// Len returns the number of questions in the set: one per tile pair for matching.
func (q QuestionSet) Len() int {
	if q.QuizType == QuizTypeMatching {
		return len(q.Tiles) / 2
	}
	return len(q.Questions)
}

// Answer is a participant's interaction: a tile for matching, an option for multiple choice.
type Answer struct {
	TileIndex *int   `json:"tileIndex,omitempty"`
	OptionID  string `json:"optionId,omitempty"`
}

// CompletionTrigger records which path moved a session to completed.
type CompletionTrigger string

const (
	TriggerHostTimer   CompletionTrigger = "host-timer"
	TriggerAllFinished CompletionTrigger = "all-finished"
	TriggerDeadline    CompletionTrigger = "deadline"
)

// RankingEntry is derived for display and never persisted.
type RankingEntry struct {
	Rank           int             `json:"rank"`
	ParticipantID  string          `json:"participantId"`
	Username       string          `json:"username"`
	ProfilePicture string          `json:"profilePicture,omitempty"`
	CurrentScore   int             `json:"currentScore"`
	TimeUsedMillis *int64          `json:"timeUsedMillis"`
	Finished       bool            `json:"finished"`
	Accuracy       decimal.Decimal `json:"accuracy"`
}

// Ranking is the final leaderboard of a completed session.
type Ranking struct {
	GameID   string         `json:"gameId"`
	QuizType QuizType       `json:"quizType"`
	Entries  []RankingEntry `json:"entries"`
}

// StandingsEntry is a participant's live score while a game is in progress.
type StandingsEntry struct {
	ParticipantID string `json:"participantId"`
	Score         int    `json:"score"`
}

// Standings are the live scores of a game, highest first. Unlike Ranking they ignore time.
type Standings struct {
	GameID  string           `json:"gameId"`
	Entries []StandingsEntry `json:"entries"`
}
