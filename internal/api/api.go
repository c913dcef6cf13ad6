package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/errors"
	"github.com/victornm/flashgame/internal/event"
	"github.com/victornm/flashgame/internal/join"
	"github.com/victornm/flashgame/internal/leaderboard"
	"github.com/victornm/flashgame/internal/play"
	"github.com/victornm/flashgame/internal/ranking"
	"github.com/victornm/flashgame/internal/session"
	"github.com/victornm/flashgame/internal/store"
)

const headerUserID = "X-User-ID"

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Store        store.Gateway
	Session      *session.Service
	Join         *join.Coordinator
	Play         *play.Service
	Ranking      *ranking.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	st  store.Gateway
	gss *session.Service
	jc  *join.Coordinator
	ps  *play.Service
	rs  *ranking.Service
	ls  *leaderboard.Service
	eb  *event.Bus

	redis  Redis
	prefix string

	closeOnce sync.Once
	done      chan struct{}
}

func New(c Config) *API {
	a := &API{
		st:     c.Store,
		gss:    c.Session,
		jc:     c.Join,
		ps:     c.Play,
		rs:     c.Ranking,
		ls:     c.Leaderboard,
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		done:   make(chan struct{}),
	}

	// HTTP APIs
	c.Router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	v1 := c.Router.Group("/v1")
	v1.POST("/games", a.CreateGame)
	v1.GET("/games/:id", a.GetGame)
	v1.GET("/games/:id/questions", a.GetQuestions)
	v1.POST("/games/:id/join", a.JoinGame)
	v1.POST("/games/:id/start", a.StartGame)
	v1.GET("/games/:id/ranking", a.GetRanking)
	v1.GET("/games/:id/standings", a.GetStandings)
	v1.GET("/games/:id/ws", a.StreamGame)
	v1.POST("/participants/:id/answers", a.SubmitAnswer)
	v1.DELETE("/participants/:id", a.LeaveGame)

	// Register event handlers
	if a.redis != nil {
		a.forwardNotifications()
	}

	return a
}

// Close ends open websocket streams.
func (a *API) Close() {
	a.closeOnce.Do(func() { close(a.done) })
}

type CreateGameRequest struct {
	HostUserID       string          `json:"hostUserId"`
	CardSetID        string          `json:"cardSetId"`
	QuizType         domain.QuizType `json:"quizType"`
	QuestionQty      int             `json:"questionQty"`
	TimeLimitSeconds int             `json:"timeLimitSeconds"`
}

func (a *API) CreateGame(c *gin.Context) {
	var req CreateGameRequest
	if !bind(c, &req) {
		return
	}

	ss, err := a.gss.CreateGame(c, session.CreateGameRequest{
		HostUserID:       req.HostUserID,
		CardSetID:        req.CardSetID,
		QuizType:         req.QuizType,
		QuestionQty:      req.QuestionQty,
		TimeLimitSeconds: req.TimeLimitSeconds,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ss)
}

func (a *API) GetGame(c *gin.Context) {
	ss, err := a.gss.GetGame(c, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, ss)
}

// GetQuestions returns the game's questions without their answers.
func (a *API) GetQuestions(c *gin.Context) {
	ss, err := a.gss.GetGame(c, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	qs, err := a.st.GetQuestionSet(c, ss.GameQuestionID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newQuestions(ss.GameID, qs))
}

func (a *API) JoinGame(c *gin.Context) {
	var identity domain.Identity
	if !bind(c, &identity) {
		return
	}

	resp, err := a.jc.Join(c, join.JoinRequest{
		GameID:   c.Param("id"),
		Identity: identity,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type StartGameRequest struct {
	UserID string `json:"userId"`
}

// StartGame starts the game for its host. The caller is taken from the body or the X-User-ID header.
func (a *API) StartGame(c *gin.Context) {
	var req StartGameRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = c.GetHeader(headerUserID)
	}

	ss, err := a.gss.StartGame(c, session.StartGameRequest{
		GameID: c.Param("id"),
		UserID: req.UserID,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, ss)
}

func (a *API) GetRanking(c *gin.Context) {
	r, err := a.rs.GetRanking(c, ranking.GetRankingRequest{GameID: c.Param("id")})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) GetStandings(c *gin.Context) {
	st, err := a.ls.GetStandings(c, leaderboard.GetStandingsRequest{GameID: c.Param("id")})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var answer domain.Answer
	if !bind(c, &answer) {
		return
	}

	resp, err := a.ps.SubmitAnswer(c, play.SubmitAnswerRequest{
		ParticipantID: c.Param("id"),
		Answer:        answer,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) LeaveGame(c *gin.Context) {
	if err := a.ps.Leave(c, c.Param("id")); err != nil {
		renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed request body: %v", err),
			errors.WithCause(err),
		))
		return false
	}
	return true
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c, "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
