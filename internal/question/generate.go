package question

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
)

const optionsPerQuestion = 4

// Generate builds the question set of a session from a card set. It is a pure function of its
// inputs: every participant plays the set produced once at session creation, and the seed is
// kept on the set so it can be reproduced.
func Generate(quizType domain.QuizType, cards []domain.Card, qty int, seed uint64) (domain.QuestionSet, error) {
	if qty < 1 || qty > len(cards) {
		return domain.QuestionSet{}, errors.InvalidArgument("question quantity must be between 1 and %d: got %d", len(cards), qty)
	}

	seen := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		if _, ok := seen[c.ID]; ok || c.ID == "" {
			return domain.QuestionSet{}, errors.InvalidArgument("card ids must be unique and non-empty: card=%q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	picked := r.Perm(len(cards))[:qty]

	qs := domain.QuestionSet{
		QuizType: quizType,
		Seed:     seed,
	}

	switch quizType {
	case domain.QuizTypeMatching:
		qs.Tiles = matchingTiles(r, cards, picked)
	case domain.QuizTypeMultipleChoice:
		qs.Questions = choiceQuestions(r, cards, picked)
	default:
		return domain.QuestionSet{}, errors.InvalidArgument("unknown quiz type: %s", quizType)
	}

	return qs, nil
}

func matchingTiles(r *rand.Rand, cards []domain.Card, picked []int) []domain.Tile {
	tiles := make([]domain.Tile, 0, 2*len(picked))
	for _, i := range picked {
		c := cards[i]
		tiles = append(tiles,
			domain.Tile{CardID: c.ID, Fields: c.Front, Side: domain.SideFront},
			domain.Tile{CardID: c.ID, Fields: c.Back, Side: domain.SideBack},
		)
	}

	r.Shuffle(len(tiles), func(i, j int) {
		tiles[i], tiles[j] = tiles[j], tiles[i]
	})

	return tiles
}

func choiceQuestions(r *rand.Rand, cards []domain.Card, picked []int) []domain.ChoiceQuestion {
	questions := make([]domain.ChoiceQuestion, 0, len(picked))
	for _, i := range picked {
		c := cards[i]
		correct := newOptionID(r)
		options := []domain.Option{{OptionID: correct, AnswerFields: c.Back}}

		// Distractors are drawn from the whole set, not only from the sampled cards.
		for _, j := range r.Perm(len(cards)) {
			if len(options) == optionsPerQuestion {
				break
			}
			if j == i {
				continue
			}
			options = append(options, domain.Option{OptionID: newOptionID(r), AnswerFields: cards[j].Back})
		}

		r.Shuffle(len(options), func(a, b int) {
			options[a], options[b] = options[b], options[a]
		})

		questions = append(questions, domain.ChoiceQuestion{
			QuestionID:      c.ID,
			PromptFields:    c.Front,
			Options:         options,
			CorrectOptionID: correct,
		})
	}

	return questions
}

// newOptionID draws an option id from r, so option ids say nothing about the cards behind
// them and the same seed yields the same ids.
func newOptionID(r *rand.Rand) string {
	return uuid.Must(uuid.NewRandomFromReader(randReader{r})).String()
}

type randReader struct{ r *rand.Rand }

func (rr randReader) Read(p []byte) (int, error) {
	var buf [8]byte
	for n := 0; n < len(p); n += len(buf) {
		binary.LittleEndian.PutUint64(buf[:], rr.r.Uint64())
		copy(p[n:], buf[:])
	}
	return len(p), nil
}
