package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fafmau/quizd/internal/api"
	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/event"
	"github.com/fafmau/quizd/internal/leaderboard"
	"github.com/fafmau/quizd/internal/player"
	"github.com/fafmau/quizd/internal/question"
	"github.com/fafmau/quizd/internal/session"
)

func TestAPI_QuizFlow(t *testing.T) {
	f := makeFixture(t)

	// Register and log in.
	w := f.do(t, http.MethodPost, "/api/register", "", `{"name":"alice","password":"secret"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/login", "", `{"name":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	// Start a block over the single-question bank.
	w = f.do(t, http.MethodPost, "/api/quiz/start", token, `{"size":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode(t, w)
	assert.Equal(t, false, start["all_answered"])

	// Fetch the pending question.
	w = f.do(t, http.MethodGet, "/api/quiz/question", token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	q := decode(t, w)
	assert.Equal(t, "2+2?", q["text"])

	// Answer it correctly.
	w = f.do(t, http.MethodPost, "/api/quiz/answer", token, `{"choice":"4"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ans := decode(t, w)
	assert.Equal(t, true, ans["correct"])
	assert.Equal(t, true, ans["completed"])

	// The profile reflects the recorded block.
	w = f.do(t, http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decode(t, w)
	assert.Equal(t, float64(1), me["score"])
	assert.Equal(t, float64(1), me["best_score"])
	assert.Equal(t, float64(100), me["percentage"])

	// And so does the public leaderboard.
	w = f.do(t, http.MethodGet, "/api/leaderboard", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var l domain.Leaderboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
	require.Len(t, l.Entries, 1)
	assert.Equal(t, "alice", l.Entries[0].Name)
	assert.Equal(t, 1, l.Entries[0].Score)
}

func TestAPI_Unauthorized(t *testing.T) {
	f := makeFixture(t)

	tests := map[string]struct {
		method string
		path   string
		header string
	}{
		"no token":      {method: http.MethodGet, path: "/api/quiz/question"},
		"garbage token": {method: http.MethodGet, path: "/api/quiz/question", header: "not-a-token"},
		"start":         {method: http.MethodPost, path: "/api/quiz/start"},
		"answer":        {method: http.MethodPost, path: "/api/quiz/answer"},
		"me":            {method: http.MethodGet, path: "/api/me"},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.header, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAPI_RegisterConflict(t *testing.T) {
	f := makeFixture(t)

	w := f.do(t, http.MethodPost, "/api/register", "", `{"name":"alice","password":"secret"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/api/register", "", `{"name":"alice","password":"other"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_LoginBadCredentials(t *testing.T) {
	f := makeFixture(t)

	w := f.do(t, http.MethodPost, "/api/login", "", `{"name":"ghost","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_LogoutEndsSession(t *testing.T) {
	f := makeFixture(t)
	token := f.login(t, "alice")

	w := f.do(t, http.MethodPost, "/api/logout", token, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_SecondStartConflicts(t *testing.T) {
	f := makeFixture(t)
	token := f.login(t, "alice")

	w := f.do(t, http.MethodPost, "/api/quiz/start", token, `{"size":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/quiz/start", token, `{"size":1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_LeaderboardWebsocket(t *testing.T) {
	f := makeFixture(t)

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The initial snapshot arrives without any score activity.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var l domain.Leaderboard
	require.NoError(t, json.Unmarshal(msg, &l))
	assert.Empty(t, l.Entries)
}

type fixture struct {
	engine *gin.Engine
	eb     *event.Bus
}

func makeFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool := []domain.Question{
		{ID: 1, Text: "2+2?", Choices: []string{"4", "3", "5", "22"}, Correct: "4"},
	}

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	players := player.NewService(player.Config{Store: player.NewMemoryStore()})
	sessions := session.NewService(session.Config{
		Players:   players,
		Questions: question.NewStore(question.NewStaticLoader(pool), time.Minute),
		EventBus:  eb,
		BlockSize: 20,
	})
	boards := leaderboard.NewService(leaderboard.Config{
		EventBus: eb,
		Players:  players,
	})

	engine := gin.New()
	api.New(api.Config{
		Engine:      engine,
		EventBus:    eb,
		Players:     players,
		Sessions:    sessions,
		Leaderboard: boards,
	})

	return &fixture{engine: engine, eb: eb}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, r)
	return w
}

func (f *fixture) login(t *testing.T, name string) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/register", "", fmt.Sprintf(`{"name":%q,"password":"secret"}`, name))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/login", "", fmt.Sprintf(`{"name":%q,"password":"secret"}`, name))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	return decode(t, w)["token"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	out := make(map[string]any)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
