package game

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const NOTIFY_BUFFER = 256

// Commander sends the local user's commands to the game server. Acks are
// delivered asynchronously and may never arrive.
type Commander interface {
	PlaceBet(amount, autoCashout int64, ack func(error)) error
	CashOut(ack func(error)) error
	SetAutoCashout(at int64) error
}

type Options struct {
	Logger       *zerolog.Logger
	Clock        clockwork.Clock
	Commander    Commander
	NotifyBuffer int
	HistorySize  int
	// OnAnomaly is called with every protocol anomaly while the client's
	// lock is held. It must not call back into the client.
	OnAnomaly func(error)
}

// Client follows one game server. It owns the current round, the round
// history, the tick model and the local user's wager state; all of them are
// mutated only by Dispatch and the command methods, one call at a time.
type Client struct {
	mu sync.RWMutex

	log     zerolog.Logger
	gameLog zerolog.Logger
	userLog zerolog.Logger
	tickLog zerolog.Logger

	clock     clockwork.Clock
	cmd       Commander
	onAnomaly func(error)

	connected      bool
	username       string
	balance        int64
	userState      UserState
	staked         int64
	lastServerSeed string
	lastVerdict    Verdict

	round   *Round
	model   *LinearModel
	history *History

	// outbox holds notifications raised under mu until Dispatch releases
	// it. sendMu keeps deliveries in dispatch order.
	outbox        []Notification
	sendMu        sync.Mutex
	notifications chan Notification
}

func NewClient(opts Options) *Client {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	buffer := opts.NotifyBuffer
	if buffer <= 0 {
		buffer = NOTIFY_BUFFER
	}

	return &Client{
		log:           logger.With().Str("component", "client").Logger(),
		gameLog:       logger.With().Str("component", "game").Logger(),
		userLog:       logger.With().Str("component", "user").Logger(),
		tickLog:       logger.With().Str("component", "tick").Logger(),
		clock:         clock,
		cmd:           opts.Commander,
		onAnomaly:     opts.OnAnomaly,
		userState:     UserWatching,
		lastVerdict:   VerdictUnknown,
		history:       NewHistory(opts.HistorySize),
		notifications: make(chan Notification, buffer),
	}
}

// SetCommander attaches the outbound transport.
func (c *Client) SetCommander(cmd Commander) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmd = cmd
}

// Run applies events in arrival order until ctx is done or events is closed.
func (c *Client) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.dispatch(ctx, ev)
		}
	}
}

// Dispatch applies a single server event. It blocks while the notification
// buffer is full, except for ticks, which are dropped instead.
func (c *Client) Dispatch(ev Event) {
	c.dispatch(context.Background(), ev)
}

func (c *Client) dispatch(ctx context.Context, ev Event) {
	c.mu.Lock()
	c.apply(ev)
	outbox := c.outbox
	c.outbox = nil
	c.sendMu.Lock()
	c.mu.Unlock()

	defer c.sendMu.Unlock()
	c.deliver(ctx, outbox)
}

func (c *Client) apply(ev Event) {
	switch e := ev.(type) {
	case Connected:
		c.onConnect()
	case Disconnected:
		c.onDisconnect(e)
	case TransportError:
		c.onTransportError(e)
	case Joined:
		c.onJoin(e)
	case RoundStarting:
		c.onGameStarting(e)
	case RoundStarted:
		c.onGameStarted(e)
	case TickEvent:
		c.onGameTick(e)
	case RoundCrashed:
		c.onGameCrash(e)
	case PlayerBet:
		c.onPlayerBet(e)
	case PlayerCashedOut:
		c.onCashedOut(e)
	default:
		c.log.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("unhandled event")
	}
}

func (c *Client) onConnect() {
	c.connected = true
	c.log.Info().Msg("connected")
	c.notify(NotifyConnect, nil)
}

func (c *Client) onDisconnect(e Disconnected) {
	c.connected = false
	c.log.Warn().Str("reason", e.Reason).Msg("disconnected")
	c.notify(NotifyDisconnect, e.Reason)
}

func (c *Client) onTransportError(e TransportError) {
	c.log.Error().Err(e.Err).Msg("transport error")
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	c.notify(NotifyError, msg)
}

func (c *Client) onJoin(d Joined) {
	now := c.clock.Now()

	history := make([]*Round, 0, len(d.TableHistory))
	for _, h := range d.TableHistory {
		history = append(history, &Round{
			ID:         h.GameID,
			Phase:      PhaseEnded,
			ServerSeed: h.Hash,
			StartTime:  h.Created,
			CrashPoint: h.GameCrash,
			Verified:   Verify(h.Hash, h.GameCrash),
			Players:    maps.Clone(h.PlayerInfo),
		})
	}
	c.history.Reset(history)

	players := maps.Clone(d.PlayerInfo)
	if players == nil {
		players = make(map[string]Wager)
	}
	for _, name := range d.Joined {
		if _, ok := players[name]; !ok {
			players[name] = Wager{}
		}
	}

	if d.State.rank() == 0 {
		c.anomaly(fmt.Errorf("%w: join snapshot in state %q", ErrUnexpectedPhase, d.State))
	}

	r := &Round{
		ID:             d.GameID,
		Phase:          d.State,
		ServerSeedHash: d.LastHash,
		StartTime:      d.Created,
		Players:        players,
	}

	c.model = nil
	switch d.State {
	case PhaseStarting:
		// Elapsed is negative while the round is starting.
		r.StartTime = now.Add(-time.Duration(d.Elapsed) * time.Millisecond)
		r.StartMicros = r.StartTime.UnixMicro()
	case PhaseInProgress:
		r.StartMicros = d.Created.UnixMicro()
		t := Tick{
			Elapsed: d.Elapsed,
			Growth:  Growth(d.Elapsed),
			Micro:   now.UnixMicro() - r.StartMicros,
		}
		r.Ticks = []Tick{t}
		c.model = NewLinearModel()
		c.model.Add(0, 0)
		c.model.Add(float64(t.Elapsed), float64(t.Micro))
	}

	c.round = r
	c.lastServerSeed = d.LastHash
	c.username = d.Username
	c.balance = d.Balance
	c.staked = 0

	w, playing := players[c.username]
	switch {
	case c.username == "" || !playing:
		c.userState = UserWatching
	case w.StoppedAt != nil:
		c.userState = UserCashedOut
	case d.State == PhaseEnded:
		c.userState = UserCrashed
	case d.State == PhaseStarting:
		c.userState = UserPlaced
		c.staked = w.Bet
	default:
		c.userState = UserPlaying
	}

	c.log.Info().
		Int64("game_id", d.GameID).
		Str("state", string(d.State)).
		Str("last_hash", d.LastHash).
		Int64("elapsed", d.Elapsed).
		Str("username", d.Username).
		Int64("balance", d.Balance).
		Str("user_state", string(c.userState)).
		Int("history", len(history)).
		Msg("joined game")

	c.notify(NotifyJoin, d)
}

func (c *Client) onGameStarting(d RoundStarting) {
	if c.round != nil && c.round.Phase != PhaseEnded {
		c.anomaly(fmt.Errorf("%w: game #%d starting while game #%d is %s",
			ErrUnexpectedPhase, d.GameID, c.round.ID, c.round.Phase))
	}

	start := c.clock.Now().Add(time.Duration(d.TimeTillStart) * time.Millisecond)
	c.round = &Round{
		ID: d.GameID,
		// The commitment of a round is the seed revealed by the previous one.
		ServerSeedHash: c.lastServerSeed,
		Phase:          PhaseStarting,
		StartTime:      start,
		StartMicros:    start.UnixMicro(),
		Players:        make(map[string]Wager),
	}
	c.model = nil
	c.staked = 0

	if c.userState != UserWatching {
		c.userLog.Debug().Msgf("User state: %s -> %s", c.userState, UserWatching)
	}
	c.userState = UserWatching

	c.gameLog.Debug().Int64("game_id", d.GameID).Msg("game starting")
	c.notify(NotifyGameStarting, d)
}

// onGameStarted moves a PLACED or PLACING user to PLAYING only when the
// server's bet map includes them; otherwise the bet missed the round and
// the user goes back to WATCHING.
func (c *Client) onGameStarted(d RoundStarted) {
	if c.round == nil {
		c.anomaly(fmt.Errorf("%w: game started before join", ErrNoRound))
		return
	}
	if c.round.Phase != PhaseStarting {
		c.anomaly(fmt.Errorf("%w: game #%d started while %s",
			ErrUnexpectedPhase, c.round.ID, c.round.Phase))
		return
	}

	now := c.clock.Now()
	r := c.round.clone()
	r.Phase = PhaseInProgress
	r.StartTime = now
	r.StartMicros = now.UnixMicro()

	for name, bet := range d.Bets {
		w := r.Players[name]
		w.Bet = bet
		r.Players[name] = w

		if c.username != "" && name == c.username {
			// Only take what player_bet has not already taken.
			c.balance -= bet - c.staked
			c.staked = bet
		}
	}

	r.Ticks = []Tick{{Elapsed: 0, Growth: 100, Micro: 0}}
	c.model = NewLinearModel()
	c.model.Add(0, 0)
	c.round = r

	_, included := d.Bets[c.username]
	included = included && c.username != ""
	switch c.userState {
	case UserPlaced, UserPlacing:
		if included {
			c.setUserState(UserPlaying)
		} else {
			c.userLog.Info().Msg("bet failed")
			c.setUserState(UserWatching)
		}
	}

	c.gameLog.Debug().Int64("game_id", r.ID).Int("bets", len(d.Bets)).Msg("game started")
	c.notify(NotifyGameStarted, d.Bets)
}

func (c *Client) onGameTick(d TickEvent) {
	if c.round == nil || c.round.Phase != PhaseInProgress || c.model == nil {
		c.anomaly(fmt.Errorf("%w: tick %d outside a running game", ErrUnexpectedPhase, d.Elapsed))
		return
	}

	previous := c.round.LastTick()
	if len(c.round.Ticks) > 0 && d.Elapsed <= previous.Elapsed {
		c.anomaly(fmt.Errorf("%w: elapsed %d after %d", ErrOutOfOrderTick, d.Elapsed, previous.Elapsed))
		return
	}

	tick := Tick{
		Elapsed: d.Elapsed,
		Growth:  Growth(d.Elapsed),
		Micro:   c.clock.Now().UnixMicro() - c.round.StartMicros,
	}

	r := *c.round
	r.Ticks = append(c.round.Ticks, tick)
	c.round = &r
	c.model.Add(float64(tick.Elapsed), float64(tick.Micro))

	if e := c.tickLog.Debug(); e.Enabled() {
		next := c.nextTick()
		e.Str("growth", FormatFactor(tick.Growth)).
			Int64("elapsed", tick.Elapsed).
			Int64("d_elapsed", tick.Elapsed-previous.Elapsed).
			Int64("d_micro", tick.Micro-previous.Micro).
			Str("next", FormatFactor(next.Upper.Growth)).
			Msgf("%d < tick < %d", next.Lower.Elapsed, next.Upper.Elapsed)
	}

	c.notify(NotifyGameTick, tick)
}

func (c *Client) onGameCrash(d RoundCrashed) {
	if c.round == nil {
		c.anomaly(fmt.Errorf("%w: crash before join", ErrNoRound))
		c.lastServerSeed = d.Hash
		return
	}
	if c.round.Phase == PhaseEnded {
		c.anomaly(fmt.Errorf("%w: game #%d crashed twice", ErrUnexpectedPhase, c.round.ID))
		return
	}
	if c.round.Phase != PhaseInProgress {
		c.anomaly(fmt.Errorf("%w: game #%d crashed while %s", ErrUnexpectedPhase, c.round.ID, c.round.Phase))
	}

	c.lastServerSeed = d.Hash

	r := c.round.clone()
	r.Phase = PhaseEnded
	r.CrashPoint = d.GameCrash
	r.ServerSeed = d.Hash
	r.Forced = d.Forced

	for name, bonus := range d.Bonuses {
		w, ok := r.Players[name]
		if !ok {
			c.anomaly(fmt.Errorf("%w: bonus for %q in game #%d", ErrUnknownPlayer, name, r.ID))
			continue
		}
		b := bonus
		w.Bonus = &b
		r.Players[name] = w
	}

	r.Verified = Verify(d.Hash, d.GameCrash)
	r.ChainLinked = ChainLinked(d.Hash, r.ServerSeedHash)
	c.round = r
	c.lastVerdict = r.Verified
	c.history.Push(r)

	level := zerolog.InfoLevel
	if r.Verified != VerdictOK {
		level = zerolog.WarnLevel
	}
	c.gameLog.WithLevel(level).
		Int64("game_id", r.ID).
		Str("verified", string(r.Verified)).
		Bool("chain_linked", r.ChainLinked).
		Str("duration", FormatTimeDiff(time.Duration(Duration(d.GameCrash))*time.Millisecond)).
		Msgf("Game #%d crashed @%sx", r.ID, FormatFactor(d.GameCrash))

	if c.userState == UserPlaying || c.userState == UserCashingOut {
		c.setUserState(UserCrashed)
		c.notify(NotifyUserLoss, d)
	}

	c.notify(NotifyGameCrash, d)
}

func (c *Client) onPlayerBet(d PlayerBet) {
	if c.round == nil {
		c.anomaly(fmt.Errorf("%w: bet by %q before join", ErrNoRound, d.Username))
		return
	}
	if c.round.Phase != PhaseStarting {
		c.anomaly(fmt.Errorf("%w: bet by %q while game #%d is %s",
			ErrUnexpectedPhase, d.Username, c.round.ID, c.round.Phase))
	}

	r := c.round.clone()
	w := r.Players[d.Username]
	w.Bet = d.Bet
	w.AutoCashout = d.AutoCashout
	r.Players[d.Username] = w
	c.round = r

	if c.username == "" || d.Username != c.username {
		c.gameLog.Debug().Str("username", d.Username).Int64("bet", d.Bet).Msg("player bet")
		c.notify(NotifyPlayerBet, d)
		return
	}

	switch c.userState {
	case UserWatching, UserPlacing:
		c.setUserState(UserPlaced)
	default:
		c.userLog.Warn().Str("user_state", string(c.userState)).Msg("bet confirmed in unexpected state")
	}

	if d.Index == nil {
		c.balance -= d.Bet - c.staked
		c.staked = d.Bet
	}

	c.notify(NotifyPlayerBet, d)
	c.notify(NotifyUserBet, d)
}

func (c *Client) onCashedOut(d PlayerCashedOut) {
	if c.round == nil {
		c.anomaly(fmt.Errorf("%w: cashout by %q before join", ErrNoRound, d.Username))
		return
	}
	if c.round.Phase != PhaseInProgress {
		c.anomaly(fmt.Errorf("%w: cashout by %q while game #%d is %s",
			ErrUnexpectedPhase, d.Username, c.round.ID, c.round.Phase))
	}

	r := c.round.clone()
	w, ok := r.Players[d.Username]
	if !ok {
		c.anomaly(fmt.Errorf("%w: cashout by %q who never bet", ErrUnknownPlayer, d.Username))
	}
	stoppedAt := d.StoppedAt
	w.StoppedAt = &stoppedAt
	r.Players[d.Username] = w
	c.round = r

	if c.username == "" || d.Username != c.username {
		c.gameLog.Debug().Str("username", d.Username).Msgf("Player cashout @%s", FormatFactor(d.StoppedAt))
		c.notify(NotifyCashedOut, d)
		return
	}

	c.balance += w.Bet * d.StoppedAt / 100
	c.userLog.Info().Int64("bet", w.Bet).Msgf("User cashout @%s", FormatFactor(d.StoppedAt))
	c.setUserState(UserCashedOut)

	c.notify(NotifyCashedOut, d)
	c.notify(NotifyUserCashedOut, d)
}

// PlaceBet requests a bet for the next round. The user moves to PLACING
// until the server's player_bet or game_started settles it.
func (c *Client) PlaceBet(amount, autoCashout int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount %d", ErrInvalidBet, amount)
	}

	c.mu.Lock()
	if err := c.requireState("place bet", UserWatching); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.cmd == nil {
		c.mu.Unlock()
		return ErrNoCommander
	}
	c.userLog.Debug().Int64("amount", amount).Int64("auto_cashout", autoCashout).Msg("placing bet")
	c.setUserState(UserPlacing)
	cmd := c.cmd
	c.mu.Unlock()

	return cmd.PlaceBet(amount, autoCashout, func(err error) {
		if err != nil {
			c.userLog.Error().Err(err).Msg("place bet rejected")
		}
	})
}

// CashOut requests a cashout at the current multiplier.
func (c *Client) CashOut() error {
	c.mu.Lock()
	if err := c.requireState("cash out", UserPlaying, UserPlacing, UserPlaced); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.cmd == nil {
		c.mu.Unlock()
		return ErrNoCommander
	}
	c.setUserState(UserCashingOut)
	cmd := c.cmd
	c.mu.Unlock()

	return cmd.CashOut(func(err error) {
		if err != nil {
			c.userLog.Error().Err(err).Msg("cash out rejected")
		}
	})
}

// SetAutoCashout changes the multiplier at which the server cashes out the
// current bet.
func (c *Client) SetAutoCashout(at int64) error {
	c.mu.Lock()
	if err := c.requireState("set auto cashout", UserPlaying, UserPlacing, UserPlaced); err != nil {
		c.mu.Unlock()
		return err
	}
	cmd := c.cmd
	c.mu.Unlock()

	if cmd == nil {
		return ErrNoCommander
	}
	c.userLog.Debug().Int64("at", at).Msg("setting auto cashout")
	return cmd.SetAutoCashout(at)
}

func (c *Client) requireState(action string, allowed ...UserState) error {
	for _, s := range allowed {
		if c.userState == s {
			return nil
		}
	}
	err := fmt.Errorf("%w: cannot %s in state %s", ErrInvalidState, action, c.userState)
	c.userLog.Error().Err(err).Send()
	return err
}

func (c *Client) setUserState(s UserState) {
	if c.userState == s {
		return
	}
	c.userLog.Debug().Msgf("User state: %s -> %s", c.userState, s)
	c.userState = s
}

func (c *Client) anomaly(err error) {
	c.log.Warn().Err(err).Msg("protocol anomaly")
	if c.onAnomaly != nil {
		c.onAnomaly(err)
	}
}

// notify must be called with the lock held; the notification goes out once
// the current event has been applied.
func (c *Client) notify(t NotificationType, data any) {
	c.outbox = append(c.outbox, Notification{Type: t, Round: c.round, Data: data})
}

func (c *Client) deliver(ctx context.Context, outbox []Notification) {
	for i, n := range outbox {
		if n.Type == NotifyGameTick {
			select {
			case c.notifications <- n:
			default:
				c.tickLog.Debug().Msg("notification channel full, dropping tick")
			}
			continue
		}

		select {
		case c.notifications <- n:
		case <-ctx.Done():
			c.log.Warn().Err(ctx.Err()).Int("dropped", len(outbox)-i).Msg("stopped before notifications were delivered")
			return
		}
	}
}

// nextTick must be called with the lock held and a running round.
func (c *Client) nextTick() NextTick {
	last := c.round.LastTick()
	lower, upper := IntervalBounds(c.round.Ticks)
	return NextTick{
		Lower: c.estimate(last.Elapsed + lower),
		Upper: c.estimate(last.Elapsed + upper),
	}
}

func (c *Client) estimate(elapsed int64) TickEstimate {
	return TickEstimate{
		Elapsed: elapsed,
		Growth:  Growth(elapsed),
		Micro:   int64(math.Round(c.model.Evaluate(float64(elapsed)))),
	}
}

// Read API. Returned rounds are immutable snapshots.

func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

func (c *Client) Round() *Round {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.round
}

func (c *Client) History() []*Round {
	return c.history.Rounds()
}

func (c *Client) UserState() UserState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userState
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) Balance() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balance
}

func (c *Client) LastVerdict() Verdict {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastVerdict
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// NextTick predicts the window of the next tick. It reports false when no
// round is running.
func (c *Client) NextTick() (NextTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.round == nil || c.round.Phase != PhaseInProgress || c.model == nil {
		return NextTick{}, false
	}
	return c.nextTick(), true
}

// TimeTillStart is negative once the current round has started.
func (c *Client) TimeTillStart() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.round == nil {
		return 0
	}
	return c.round.StartTime.Sub(c.clock.Now())
}
