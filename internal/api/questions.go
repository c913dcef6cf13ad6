package api

import "github.com/victornm/flashgame/internal/domain"

// The client views below never carry the answer: tiles hide which card they belong to and
// questions hide the correct option.
type (
	Questions struct {
		GameID    string           `json:"gameId"`
		QuizType  domain.QuizType  `json:"quizType"`
		Tiles     []Tile           `json:"tiles,omitempty"`
		Questions []ChoiceQuestion `json:"questions,omitempty"`
	}

	Tile struct {
		Index  int         `json:"index"`
		Fields []string    `json:"fields"`
		Side   domain.Side `json:"side"`
	}

	ChoiceQuestion struct {
		QuestionID   string          `json:"questionId"`
		PromptFields []string        `json:"promptFields"`
		Options      []domain.Option `json:"options"`
	}
)

func newQuestions(gameID string, qs domain.QuestionSet) Questions {
	out := Questions{
		GameID:   gameID,
		QuizType: qs.QuizType,
	}

	for i, t := range qs.Tiles {
		out.Tiles = append(out.Tiles, Tile{Index: i, Fields: t.Fields, Side: t.Side})
	}

	for _, q := range qs.Questions {
		out.Questions = append(out.Questions, ChoiceQuestion{
			QuestionID:   q.QuestionID,
			PromptFields: q.PromptFields,
			Options:      q.Options,
		})
	}

	return out
}
