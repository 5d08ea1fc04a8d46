package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiba/internal/database"
	"shiba/internal/game"
)

type fakeGame struct {
	round     *game.Round
	history   []*game.Round
	next      *game.NextTick
	state     game.UserState
	connected bool
	cmdErr    error

	bets  []int64
	autos []int64
}

func (f *fakeGame) Round() *game.Round           { return f.round }
func (f *fakeGame) History() []*game.Round       { return f.history }
func (f *fakeGame) TimeTillStart() time.Duration { return 0 }
func (f *fakeGame) UserState() game.UserState    { return f.state }
func (f *fakeGame) Username() string             { return "Steve" }
func (f *fakeGame) Balance() int64               { return 9000 }
func (f *fakeGame) LastVerdict() game.Verdict    { return game.VerdictOK }
func (f *fakeGame) IsConnected() bool            { return f.connected }

func (f *fakeGame) NextTick() (game.NextTick, bool) {
	if f.next == nil {
		return game.NextTick{}, false
	}
	return *f.next, true
}

func (f *fakeGame) PlaceBet(amount, autoCashout int64) error {
	if f.cmdErr != nil {
		return f.cmdErr
	}
	f.bets = append(f.bets, amount)
	f.state = game.UserPlacing
	return nil
}

func (f *fakeGame) CashOut() error {
	if f.cmdErr != nil {
		return f.cmdErr
	}
	f.state = game.UserCashingOut
	return nil
}

func (f *fakeGame) SetAutoCashout(at int64) error {
	if f.cmdErr != nil {
		return f.cmdErr
	}
	f.autos = append(f.autos, at)
	return nil
}

type fakeRounds struct {
	rounds map[int64]*game.Round
}

func (f *fakeRounds) Get(_ context.Context, id int64) (*game.Round, error) {
	r, ok := f.rounds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", database.ErrRoundNotFound, id)
	}
	return r, nil
}

func (f *fakeRounds) Disputed(_ context.Context, limit int) ([]*game.Round, error) {
	var out []*game.Round
	for _, r := range f.rounds {
		if r.Verified != game.VerdictOK {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestServer(g *fakeGame, rounds RoundReader) *FiberServer {
	s := New(Deps{Game: g, Rounds: rounds})
	s.RegisterFiberRoutes()
	return s
}

func do(t *testing.T, s *FiberServer, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var result map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &result), string(raw))
	}
	return resp.StatusCode, result
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(&fakeGame{state: game.UserWatching, connected: true}, nil)

	code, body := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "up", body["status"])

	client := body["client"].(map[string]any)
	assert.Equal(t, "Steve", client["username"])
	assert.Equal(t, "WATCHING", client["user_state"])
	assert.NotContains(t, body, "database")

	s = newTestServer(&fakeGame{}, nil)
	_, body = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, "degraded", body["status"])
}

func TestReadHandlers(t *testing.T) {
	g := &fakeGame{state: game.UserWatching}
	s := newTestServer(g, nil)

	code, _ := do(t, s, http.MethodGet, "/api/v1/round", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodGet, "/api/v1/next-tick", "")
	assert.Equal(t, http.StatusNotFound, code)

	g.round = &game.Round{ID: 42, Phase: game.PhaseInProgress, Ticks: []game.Tick{{Elapsed: 0, Growth: 100}}}
	g.next = &game.NextTick{
		Lower: game.TickEstimate{Elapsed: 150, Growth: 100, Micro: 150000},
		Upper: game.TickEstimate{Elapsed: 200, Growth: 101, Micro: 200000},
	}
	g.history = []*game.Round{{ID: 41, Phase: game.PhaseEnded, CrashPoint: 209, Verified: game.VerdictOK}}

	code, body := do(t, s, http.MethodGet, "/api/v1/round", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 42, body["game_id"])
	assert.Equal(t, "IN_PROGRESS", body["state"])

	code, body = do(t, s, http.MethodGet, "/api/v1/next-tick", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 200, body["upper"].(map[string]any)["elapsed"])

	code, body = do(t, s, http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = do(t, s, http.MethodGet, "/api/v1/user", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 9000, body["balance"])
	assert.Equal(t, "ok", body["last_verdict"])
}

func TestCommandHandlers(t *testing.T) {
	g := &fakeGame{state: game.UserWatching}
	s := newTestServer(g, nil)

	code, body := do(t, s, http.MethodPost, "/api/v1/bet", `{"amount":100,"auto_cashout":200}`)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "PLACING", body["user_state"])
	assert.Equal(t, []int64{100}, g.bets)

	code, _ = do(t, s, http.MethodPost, "/api/v1/bet", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, s, http.MethodPost, "/api/v1/auto-cashout", `{"at":250}`)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, []int64{250}, g.autos)

	code, _ = do(t, s, http.MethodPost, "/api/v1/auto-cashout", `{"at":50}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, s, http.MethodPost, "/api/v1/cashout", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "CASHINGOUT", body["user_state"])
}

func TestCommandStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: cannot cash out in state WATCHING", game.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: amount 0", game.ErrInvalidBet), http.StatusBadRequest},
		{game.ErrNoCommander, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		g := &fakeGame{state: game.UserWatching, cmdErr: tt.err}
		s := newTestServer(g, nil)

		code, body := do(t, s, http.MethodPost, "/api/v1/cashout", "")
		assert.Equal(t, tt.want, code, tt.err.Error())
		assert.Equal(t, tt.err.Error(), body["error"])
	}
}

func TestArchiveHandlers(t *testing.T) {
	code, _ := do(t, newTestServer(&fakeGame{}, nil), http.MethodGet, "/api/v1/rounds/7", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	rounds := &fakeRounds{rounds: map[int64]*game.Round{
		7: {ID: 7, Phase: game.PhaseEnded, CrashPoint: 209, Verified: game.VerdictOK},
		8: {ID: 8, Phase: game.PhaseEnded, CrashPoint: 300, Verified: game.VerdictScam},
	}}
	s := newTestServer(&fakeGame{}, rounds)

	code, body := do(t, s, http.MethodGet, "/api/v1/rounds/7", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 209, body["game_crash"])

	code, _ = do(t, s, http.MethodGet, "/api/v1/rounds/9", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodGet, "/api/v1/rounds/abc", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, s, http.MethodGet, "/api/v1/rounds/disputed", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
}

func TestWebSocketStream(t *testing.T) {
	g := &fakeGame{state: game.UserWatching, round: &game.Round{ID: 42, Phase: game.PhaseStarting}}
	s := newTestServer(g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App.Listener(ln) }()
	defer s.App.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "initial_state", read().Type)
	require.Eventually(t, func() bool { return s.Hub().GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Hub().Handle(ctx, game.Notification{
		Type:  game.NotifyGameTick,
		Round: g.round,
		Data:  game.Tick{Elapsed: 150, Growth: 100},
	}))
	tick := read()
	assert.Equal(t, "game_tick", tick.Type)
	assert.EqualValues(t, 42, tick.GameID)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", read().Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "place_bet", "amount": 100}))
	result := read()
	assert.Equal(t, "result", result.Type)
	reply := result.Data.(map[string]any)
	assert.Equal(t, "place_bet", reply["action"])
	assert.Equal(t, true, reply["ok"])
	assert.Equal(t, "PLACING", reply["user_state"])
}
