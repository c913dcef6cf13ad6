// Package ranking computes the final leaderboard of a completed game.
//
// Every quiz type is ranked the same way. Players with a valid time used come first, fastest
// first, ties going to the higher score. Players without one (never finished, or finished with
// an end time before the game start) follow by descending score. Remaining ties go to the
// earlier joiner, then to the lower participant id, so the order is total.
package ranking

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/victornm/flashgame/internal/domain"
)

// Rank builds the ranking of a session from its players and their participant records.
// Records of participants that are not players are ignored.
func Rank(ctx context.Context, ss domain.GameSession, ps []domain.Participant) domain.Ranking {
	byID := make(map[string]domain.Participant, len(ps))
	for _, p := range ps {
		byID[p.ParticipantID] = p
	}

	type row struct {
		entry  domain.RankingEntry
		joined int64
	}

	rows := make([]row, 0, len(ss.Players))
	seen := make(map[string]struct{}, len(ss.Players))
	for _, pl := range ss.Players {
		if _, ok := seen[pl.ParticipantID]; ok {
			continue
		}
		seen[pl.ParticipantID] = struct{}{}

		p, ok := byID[pl.ParticipantID]
		if !ok {
			slog.WarnContext(ctx, "ranking: participant record missing", "game_id", ss.GameID, "participant_id", pl.ParticipantID)
		}

		rows = append(rows, row{
			entry: domain.RankingEntry{
				ParticipantID:  pl.ParticipantID,
				Username:       pl.Username,
				ProfilePicture: pl.ProfilePicture,
				CurrentScore:   p.CurrentScore,
				TimeUsedMillis: timeUsed(ctx, ss, p),
				Finished:       p.Finished(),
				Accuracy:       accuracy(p.CurrentScore, ss.QuestionQty),
			},
			joined: pl.JoinedAt.UnixNano(),
		})
	}

	slices.SortFunc(rows, func(a, b row) int {
		at, bt := a.entry.TimeUsedMillis, b.entry.TimeUsedMillis
		switch {
		case at != nil && bt == nil:
			return -1
		case at == nil && bt != nil:
			return 1
		case at != nil && bt != nil:
			if c := cmp.Compare(*at, *bt); c != 0 {
				return c
			}
		}

		return cmp.Or(
			cmp.Compare(b.entry.CurrentScore, a.entry.CurrentScore),
			cmp.Compare(a.joined, b.joined),
			cmp.Compare(a.entry.ParticipantID, b.entry.ParticipantID),
		)
	})

	entries := make([]domain.RankingEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
		entries[i].Rank = i + 1
	}

	return domain.Ranking{
		GameID:   ss.GameID,
		QuizType: ss.QuizType,
		Entries:  entries,
	}
}

func timeUsed(ctx context.Context, ss domain.GameSession, p domain.Participant) *int64 {
	if p.GameEndedAt == nil || ss.StartedAt == nil {
		return nil
	}

	d := p.GameEndedAt.Sub(*ss.StartedAt)
	if d < 0 {
		slog.WarnContext(ctx, "ranking: clock anomaly, game ended before it started",
			"game_id", ss.GameID, "participant_id", p.ParticipantID,
			"started_at", *ss.StartedAt, "game_ended_at", *p.GameEndedAt)
		return nil
	}

	ms := d.Milliseconds()
	return &ms
}

func accuracy(score, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(score)).Div(decimal.NewFromInt(int64(qty))).Round(2)
}
