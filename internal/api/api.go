package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/errors"
	"github.com/fafmau/quizd/internal/event"
	"github.com/fafmau/quizd/internal/leaderboard"
	"github.com/fafmau/quizd/internal/player"
	"github.com/fafmau/quizd/internal/session"
)

type Config struct {
	Engine      *gin.Engine
	EventBus    *event.Bus
	Players     *player.Service
	Sessions    *session.Service
	Leaderboard *leaderboard.Service
}

type API struct {
	players     *player.Service
	sessions    *session.Service
	leaderboard *leaderboard.Service

	stream *leaderboardStream
}

func New(c Config) *API {
	a := &API{
		players:     c.Players,
		sessions:    c.Sessions,
		leaderboard: c.Leaderboard,
		stream:      newLeaderboardStream(),
	}

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(_ context.Context, e event.Event) error {
		return a.stream.broadcast(e.(domain.EventLeaderboardUpdated).Leaderboard)
	})

	a.routes(c.Engine)
	return a
}

func (a *API) routes(e *gin.Engine) {
	e.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := e.Group("/api")
	api.POST("/register", a.register)
	api.POST("/login", a.login)
	api.GET("/leaderboard", a.getLeaderboard)

	auth := api.Group("", a.authenticated)
	auth.POST("/logout", a.logout)
	auth.GET("/me", a.me)
	auth.POST("/quiz/start", a.startBlock)
	auth.GET("/quiz/question", a.currentQuestion)
	auth.POST("/quiz/answer", a.answer)

	e.GET("/ws/leaderboard", a.serveLeaderboardWS)
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code,
		"message": e.Message,
	})
}

const tokenKey = "session_token"

// authenticated pulls the bearer token from the Authorization header and
// verifies it maps to a live session.
func (a *API) authenticated(c *gin.Context) {
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		writeError(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("missing bearer token")))
		return
	}

	if _, err := a.sessions.Resolve(token); err != nil {
		writeError(c, err)
		return
	}

	c.Set(tokenKey, token)
	c.Next()
}

func (a *API) token(c *gin.Context) string {
	return c.GetString(tokenKey)
}

type credentialsRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("name and password are required")))
		return
	}

	p, err := a.players.Register(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"name": p.Name})
}

func (a *API) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("name and password are required")))
		return
	}

	p, err := a.players.Authenticate(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := a.sessions.Begin(c.Request.Context(), p.Name)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (a *API) logout(c *gin.Context) {
	a.sessions.End(c.Request.Context(), a.token(c))
	c.Status(http.StatusNoContent)
}

func (a *API) me(c *gin.Context) {
	ss, err := a.sessions.Resolve(a.token(c))
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := a.players.Get(c.Request.Context(), ss.PlayerName)
	if err != nil {
		writeError(c, err)
		return
	}

	pct := 0
	if n := len(p.AnsweredIDs); n > 0 {
		pct = p.Score * 100 / n
	}

	c.JSON(http.StatusOK, gin.H{
		"name":           p.Name,
		"score":          p.Score,
		"best_score":     p.BestScore,
		"total_answered": len(p.AnsweredIDs),
		"percentage":     pct,
	})
}

type startBlockRequest struct {
	Size int `json:"size"`
}

func (a *API) startBlock(c *gin.Context) {
	var req startBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.sessions.StartBlock(c.Request.Context(), session.StartBlockRequest{
		Token: a.token(c),
		Size:  req.Size,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) currentQuestion(c *gin.Context) {
	q, ok, err := a.sessions.CurrentQuestion(c.Request.Context(), a.token(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no question pending")))
		return
	}

	c.JSON(http.StatusOK, q)
}

type answerRequest struct {
	Choice string `json:"choice" binding:"required"`
}

func (a *API) answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("choice is required")))
		return
	}

	resp, err := a.sessions.Answer(c.Request.Context(), session.AnswerRequest{
		Token:  a.token(c),
		Choice: req.Choice,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.leaderboard.GetLeaderboard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}
