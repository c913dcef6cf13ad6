package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/victornm/flashgame/internal/domain"
)

// Records are decoded into domain types here so nothing past the gateway sees raw hashes.

func encodeMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse millis %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func decodeOptionalMillis(fields map[string]string, key string) (*time.Time, error) {
	raw, ok := fields[key]
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := decodeMillis(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func decodeInt(fields map[string]string, key string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%s: missing", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func encodeSession(ss domain.GameSession) map[string]any {
	return map[string]any{
		"hostUserId":       ss.HostUserID,
		"cardSetId":        ss.CardSetID,
		"quizType":         string(ss.QuizType),
		"questionQty":      ss.QuestionQty,
		"timeLimitSeconds": ss.TimeLimitSeconds,
		"status":           string(ss.Status),
		"gameQuestionId":   ss.GameQuestionID,
		"createdAt":        encodeMillis(ss.CreatedAt),
	}
}

func decodeSession(gameID string, fields map[string]string, players []string) (domain.GameSession, error) {
	ss := domain.GameSession{
		GameID:         gameID,
		HostUserID:     fields["hostUserId"],
		CardSetID:      fields["cardSetId"],
		QuizType:       domain.QuizType(fields["quizType"]),
		Status:         domain.Status(fields["status"]),
		GameQuestionID: fields["gameQuestionId"],
	}

	if !ss.QuizType.Valid() {
		return ss, fmt.Errorf("quizType: unknown %q", ss.QuizType)
	}
	if !ss.Status.Valid() {
		return ss, fmt.Errorf("status: unknown %q", ss.Status)
	}

	var err error
	if ss.QuestionQty, err = decodeInt(fields, "questionQty"); err != nil {
		return ss, err
	}
	if ss.TimeLimitSeconds, err = decodeInt(fields, "timeLimitSeconds"); err != nil {
		return ss, err
	}
	if ss.CreatedAt, err = decodeMillis(fields["createdAt"]); err != nil {
		return ss, fmt.Errorf("createdAt: %w", err)
	}
	if ss.StartedAt, err = decodeOptionalMillis(fields, "startedAt"); err != nil {
		return ss, err
	}
	if ss.CompletedAt, err = decodeOptionalMillis(fields, "completedAt"); err != nil {
		return ss, err
	}
	if (ss.StartedAt == nil) != (ss.Status == domain.StatusWaiting) {
		return ss, fmt.Errorf("startedAt inconsistent with status %s", ss.Status)
	}

	ss.Players = make([]domain.Player, 0, len(players))
	for i, raw := range players {
		var p domain.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return ss, fmt.Errorf("players[%d]: %w", i, err)
		}
		if p.ParticipantID == "" || p.IdentityKey == "" {
			return ss, fmt.Errorf("players[%d]: missing participant id or identity", i)
		}
		ss.Players = append(ss.Players, p)
	}

	return ss, nil
}

func decodeParticipant(participantID string, fields map[string]string) (domain.Participant, error) {
	p := domain.Participant{
		ParticipantID: participantID,
		GameID:        fields["gameId"],
		Username:      fields["username"],
		IdentityKey:   fields["identityKey"],
	}

	if p.GameID == "" {
		return p, fmt.Errorf("gameId: missing")
	}

	var err error
	if p.CurrentScore, err = decodeInt(fields, "score"); err != nil {
		return p, err
	}
	if p.CurrentScore < 0 {
		return p, fmt.Errorf("score: negative %d", p.CurrentScore)
	}
	if p.GameEndedAt, err = decodeOptionalMillis(fields, "endedAt"); err != nil {
		return p, err
	}

	return p, nil
}

func decodeQuestionSet(raw []byte) (domain.QuestionSet, error) {
	var qs domain.QuestionSet
	if err := json.Unmarshal(raw, &qs); err != nil {
		return qs, err
	}

	switch qs.QuizType {
	case domain.QuizTypeMatching:
		if len(qs.Tiles)%2 != 0 {
			return qs, fmt.Errorf("tiles: odd count %d", len(qs.Tiles))
		}
	case domain.QuizTypeMultipleChoice:
		for i, q := range qs.Questions {
			if q.CorrectOptionID == "" {
				return qs, fmt.Errorf("questions[%d]: missing correct option", i)
			}
		}
	default:
		return qs, fmt.Errorf("quizType: unknown %q", qs.QuizType)
	}

	return qs, nil
}
