package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/lobby"
	"github.com/park285/Cheese-Arena/internal/match"
	"github.com/park285/Cheese-Arena/internal/reconcile"
	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/internal/store"
	"github.com/park285/Cheese-Arena/pkg/matchwire"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type env struct {
	url    string
	tokens *auth.Tokens
	lobby  *lobby.Lobby
	hub    *room.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tokens, err := auth.NewTokens("gateway-secret", time.Hour, time.Hour)
	require.NoError(t, err)
	cache := sessioncache.NewMemory(time.Hour, 30*time.Second)
	st := store.NewMemory(store.DefaultRating)
	hub := room.NewHub()
	eng := match.New(match.Deps{
		Cache:      cache,
		Rules:      rules.NewEngine(),
		Rooms:      hub,
		Reconciler: reconcile.New(cache, st),
		Progress:   st,
	})
	srv := NewServer(tokens, eng, hub, nil, Options{PingInterval: time.Minute})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &env{url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", tokens: tokens, lobby: lobby.New(st, eng), hub: hub}
}

func (e *env) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, e.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, ref matchwire.SessionRef) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, matchwire.MustEncode(event, ref)))
}

// await reads frames until one named event arrives.
func await(t *testing.T, c *websocket.Conn, event string, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var f matchwire.Frame
		require.NoError(t, wsjson.Read(ctx, c, &f), "waiting for %s", event)
		if f.Event != event {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(f.Data, out))
		}
		return
	}
}

func TestGateway_PlayThroughSocket(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	white, wTok, _, err := e.tokens.IssueGuest("W")
	require.NoError(t, err)
	black, bTok, _, err := e.tokens.IssueGuest("B")
	require.NoError(t, err)

	created, err := e.lobby.Create(ctx, white, lobby.ColorWhite)
	require.NoError(t, err)
	_, err = e.lobby.Join(ctx, created.Match.ID, black)
	require.NoError(t, err)
	id := created.Match.ID

	wc, bc := e.dial(t, wTok), e.dial(t, bTok)

	send(t, wc, matchwire.EventReady, matchwire.SessionRef{SessionID: id})
	await(t, wc, matchwire.EventReady, nil)
	send(t, bc, matchwire.EventReady, matchwire.SessionRef{SessionID: id})

	var started matchwire.MatchStarted
	await(t, wc, matchwire.EventMatchStarted, &started)
	require.Equal(t, id, started.SessionID)
	require.Equal(t, rules.InitialFEN, started.Position)
	await(t, bc, matchwire.EventMatchStarted, nil)

	send(t, wc, matchwire.EventMove, matchwire.SessionRef{SessionID: id, Notation: "e2e4"})
	var applied matchwire.MoveApplied
	await(t, bc, matchwire.EventMoveApplied, &applied)
	require.Equal(t, "e4", applied.SAN)
	require.Equal(t, "black", applied.SideToMove)
	await(t, wc, matchwire.EventMoveApplied, nil)

	send(t, wc, matchwire.EventMove, matchwire.SessionRef{SessionID: id, Notation: "d2d4"})
	var gerr matchwire.GameError
	await(t, wc, matchwire.EventGameError, &gerr)
	require.Equal(t, "OUT_OF_TURN", gerr.Code)
	require.NotEmpty(t, gerr.Message)

	send(t, bc, matchwire.EventMove, matchwire.SessionRef{SessionID: id, Notation: "e5e4"})
	await(t, bc, matchwire.EventGameError, &gerr)
	require.Equal(t, "ILLEGAL_MOVE", gerr.Code)

	send(t, bc, "castleTwice", matchwire.SessionRef{SessionID: id})
	await(t, bc, matchwire.EventGameError, &gerr)
	require.Equal(t, "UNKNOWN_EVENT", gerr.Code)

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, bc.Write(wctx, websocket.MessageText, []byte("{not json")))
	await(t, bc, matchwire.EventGameError, &gerr)
	require.Equal(t, "BAD_REQUEST", gerr.Code)

	send(t, bc, matchwire.EventResign, matchwire.SessionRef{SessionID: id})
	var ended matchwire.MatchEnded
	await(t, wc, matchwire.EventMatchEnded, &ended)
	require.Equal(t, "RESIGN", ended.Result)
	require.Equal(t, white.ID, ended.WinnerID)
	require.Empty(t, ended.Ratings)
}

func TestGateway_RejectsMissingToken(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, e.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, e.url+"?token=garbage", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_BearerHeaderAndDisconnectDrops(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	white, wTok, _, err := e.tokens.IssueGuest("")
	require.NoError(t, err)
	created, err := e.lobby.Create(ctx, white, lobby.ColorWhite)
	require.NoError(t, err)

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(dctx, e.url, &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + wTok}}})
	require.NoError(t, err)

	send(t, c, matchwire.EventState, matchwire.SessionRef{SessionID: created.Match.ID})
	var st matchwire.State
	await(t, c, matchwire.EventState, &st)
	require.Equal(t, "WAITING_FOR_READY", st.Phase)
	require.Equal(t, 1, e.hub.Count(created.Match.ID))

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return e.hub.Count(created.Match.ID) == 0 }, 3*time.Second, 20*time.Millisecond)
}
