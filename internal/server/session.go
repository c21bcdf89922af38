package server

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ATC-UW/pokerden-engine/internal/deck"
	"github.com/ATC-UW/pokerden-engine/internal/evaluator"
	"github.com/ATC-UW/pokerden-engine/internal/game"
	"github.com/ATC-UW/pokerden-engine/internal/protocol"
	"github.com/ATC-UW/pokerden-engine/internal/randutil"
)

// errHandAborted signals that the current hand stopped at a safe boundary
// because the session is shutting down.
var errHandAborted = errors.New("hand aborted by shutdown")

// Session coordinates one table: it accepts connections until quorum,
// drives continuous hands with a rotating dealer button, enforces turn
// timeouts, and persists hand logs and session status.
//
// A single driver goroutine owns the hand state; per-client receive pumps
// only forward envelopes into a bounded channel.
type Session struct {
	cfg    Config
	logger zerolog.Logger
	clock  quartz.Clock
	rng    *rand.Rand
	eval   evaluator.Evaluator
	codec  protocol.Codec

	clients map[game.PlayerID]*Client
	seats   []game.PlayerID
	actions chan ActionEnvelope

	button    int
	handCount int

	money map[game.PlayerID]int
	delta map[game.PlayerID]int

	status *statusWriter
}

// SessionOption configures session construction.
type SessionOption func(*Session)

// WithClock injects a clock so timeouts and delays are testable.
func WithClock(clock quartz.Clock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

// NewSession creates a session coordinator. The RNG seeds each hand's deck
// shuffle, so a fixed seed reproduces the whole session.
func NewSession(logger zerolog.Logger, cfg Config, rng *rand.Rand, eval evaluator.Evaluator, opts ...SessionOption) *Session {
	s := &Session{
		cfg:     cfg,
		logger:  logger.With().Str("component", "session").Logger(),
		clock:   quartz.NewReal(),
		rng:     rng,
		eval:    eval,
		codec:   protocol.NewCodec(),
		clients: make(map[game.PlayerID]*Client),
		actions: make(chan ActionEnvelope, cfg.NumPlayers*4),
		money:   make(map[game.PlayerID]int),
		delta:   make(map[game.PlayerID]int),
		status:  newStatusWriter(cfg.OutputDir),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run binds the configured listeners and runs the session to completion:
// accept until quorum, then continuous hands until the hand budget is
// spent, quorum is lost, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the session on an existing listener.
func (s *Session) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := s.status.Running(); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	defer func() {
		if err := s.status.Done(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to write final status")
		}
	}()

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Int("players", s.cfg.NumPlayers).
		Msg("Server started, waiting for players")

	if err := s.acceptUntilQuorum(ctx, listener); err != nil {
		return err
	}

	// Quorum reached: stop accepting. Late connections are refused for the
	// rest of the session.
	listener.Close()

	s.runContinuousHands(ctx)

	for _, p := range s.seats {
		if client, ok := s.clients[p]; ok {
			_ = client.Send(protocol.Disconnect{Reason: "session over"})
			client.Close()
		}
	}
	s.logger.Info().Int("hands", s.handCount).Msg("Session ended")
	return nil
}

// acceptUntilQuorum blocks until exactly the required number of players
// are connected, assigning each a fresh id in connection order.
func (s *Session) acceptUntilQuorum(ctx context.Context, listener net.Listener) error {
	incoming := make(chan LineConn)

	acceptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(acceptCtx)
	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case incoming <- newTCPLineConn(conn):
			case <-gctx.Done():
				conn.Close()
				return nil
			}
		}
	})

	if addr := s.cfg.WSListenAddr(); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", newWSAcceptor(incoming, s.logger))
		wsServer := &http.Server{Addr: addr, Handler: mux}
		g.Go(func() error {
			if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return wsServer.Close()
		})
	}

	stop := func() {
		cancel()
		// Unblock the accept goroutine; Serve closes the listener again,
		// harmlessly, on its way out.
		listener.Close()
		_ = g.Wait()
	}

	for len(s.seats) < s.cfg.NumPlayers {
		select {
		case conn := <-incoming:
			s.register(conn)
		case <-ctx.Done():
			stop()
			return ctx.Err()
		}
	}

	stop()
	return nil
}

// register assigns the next player id and starts the connection's pumps.
func (s *Session) register(conn LineConn) {
	id := game.PlayerID(len(s.seats) + 1)
	client := NewClient(s.logger, id, conn, s.codec, s.actions)
	s.clients[id] = client
	s.seats = append(s.seats, id)
	s.money[id] = s.cfg.InitialMoney
	s.delta[id] = 0

	go client.WritePump()
	go client.ReadPump()

	if err := client.Send(protocol.Connect{PlayerID: int(id)}); err != nil {
		s.logger.Error().Err(err).Int("player_id", int(id)).Msg("Failed to send connect message")
	}
	_ = client.Send(protocol.Text{Body: fmt.Sprintf("Welcome! Your ID is %d", id)})

	s.logger.Info().
		Int("player_id", int(id)).
		Str("remote", conn.RemoteAddr()).
		Int("connected", len(s.seats)).
		Msg("Player connected")
}

// connectedSeats returns the seats whose clients are still connected, in
// connection order.
func (s *Session) connectedSeats() []game.PlayerID {
	var out []game.PlayerID
	for _, p := range s.seats {
		if client, ok := s.clients[p]; ok && !client.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// runContinuousHands plays hands back to back, rotating the dealer button,
// until a stop condition is met.
func (s *Session) runContinuousHands(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		seats := s.connectedSeats()
		if len(seats) < s.cfg.NumPlayers {
			s.logger.Info().Int("connected", len(seats)).Msg("Quorum lost, stopping session")
			return
		}
		if s.cfg.HandLimit > 0 && s.handCount >= s.cfg.HandLimit {
			s.logger.Info().Int("hands", s.handCount).Msg("Hand budget spent, stopping session")
			return
		}

		s.handCount++
		if err := s.runHand(ctx, seats); err != nil {
			if errors.Is(err, errHandAborted) {
				return
			}
			s.logger.Error().Err(err).Int("hand", s.handCount).Msg("Hand failed")
		}

		s.button = (s.button + 1) % len(s.seats)

		if !s.sleep(ctx, s.cfg.InterHandDelay) {
			return
		}
	}
}

// sleep waits for d on the session clock, returning false when ctx ends.
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// runHand plays one complete hand over the given seats.
func (s *Session) runHand(ctx context.Context, seats []game.PlayerID) error {
	logger := s.logger.With().Int("hand", s.handCount).Logger()

	hand := game.NewHand(
		s.eval,
		randutil.Split(s.rng),
		s.cfg.BlindAmount,
		game.WithSequence(s.handCount),
		game.WithClock(s.clock),
	)
	for _, p := range seats {
		hand.AddPlayer(p)
	}
	hand.SetDealerButton(s.button % len(seats))

	if err := hand.Start(); err != nil {
		return fmt.Errorf("starting hand: %w", err)
	}
	logger.Debug().
		Str("hand_id", hand.ID()).
		Int("button", s.button%len(seats)).
		Msg("Hand starting")

	startingMoney := s.snapshotMoney()
	startingDelta := s.snapshotDelta()

	s.broadcast(protocol.Text{Body: fmt.Sprintf("Game #%d starting!", s.handCount)})
	for _, p := range seats {
		s.sendTo(p, protocol.GameStart{
			Message:      "Game initiated!",
			HoleCards:    deck.Strings(hand.HoleCards(p)),
			BlindAmount:  hand.BlindAmount(),
			IsSmallBlind: p == hand.SmallBlind(),
			IsBigBlind:   p == hand.BigBlind(),
		})
	}
	s.broadcastState(hand)
	s.broadcast(protocol.RoundStart{Round: hand.CurrentRound().String()})

	if s.cfg.PostBlinds == PostBlindsServer {
		if err := hand.PostBlinds(); err != nil {
			return fmt.Errorf("posting blinds: %w", err)
		}
		s.broadcastState(hand)
	}

	driveErr := s.driveHand(ctx, logger, hand)
	if errors.Is(driveErr, errHandAborted) {
		return driveErr
	}
	if driveErr != nil {
		// State errors are fatal to the hand; settle best-effort below.
		logger.Error().Err(driveErr).Msg("Hand state error, settling early")
	}

	if err := hand.EndHand(); err != nil {
		return fmt.Errorf("ending hand: %w", err)
	}

	if describer, ok := s.eval.(evaluator.HandDescriber); ok && len(hand.Active()) > 1 {
		for _, p := range hand.Active() {
			cards := append(hand.HoleCards(p), hand.Board()...)
			logger.Debug().
				Int("player_id", int(p)).
				Str("hand", describer.Describe(cards)).
				Msg("Showdown")
		}
	}

	scores := hand.Scores()
	for _, p := range seats {
		s.sendTo(p, protocol.GameEnd{Score: scores[p]})
	}
	for p, score := range scores {
		s.money[p] += score
		s.delta[p] += score
	}
	logger.Info().Interface("scores", scores).Msg("Hand complete")

	moneyBlock := &game.LogPlayerMoney{
		InitialAmount: s.cfg.InitialMoney,
		StartingMoney: startingMoney,
		StartingDelta: startingDelta,
		FinalMoney:    s.snapshotMoney(),
		FinalDelta:    s.snapshotDelta(),
		GameScores:    moneyKeys(scores),
		ThisGameDelta: moneyKeys(scores),
	}
	if err := hand.BuildLog(moneyBlock).Write(s.cfg.OutputDir); err != nil {
		logger.Error().Err(err).Msg("Failed to persist hand log")
	}
	if err := s.status.RecordResult(s.handCount, scores); err != nil {
		logger.Error().Err(err).Msg("Failed to append result log")
	}
	return nil
}

// driveHand polls actors in positional order until the hand terminates.
// Round completion is handled before the terminal check so the final
// round's RoundEnd is broadcast and its snapshot archived.
func (s *Session) driveHand(ctx context.Context, logger zerolog.Logger, hand *game.Hand) error {
	for {
		if hand.RoundComplete() {
			s.broadcast(protocol.RoundEnd{Round: hand.CurrentRound().String()})
			if err := hand.EndRound(); err != nil {
				return err
			}
			if hand.Over() {
				return nil
			}
			if err := hand.StartRound(); err != nil {
				return err
			}
			s.broadcast(protocol.RoundStart{Round: hand.CurrentRound().String()})
			s.broadcastState(hand)
			continue
		}
		if hand.Over() {
			return nil
		}

		queue := hand.ActorQueue()
		if len(queue) == 0 {
			return fmt.Errorf("round incomplete with no actors")
		}
		for _, p := range queue {
			if ctx.Err() != nil {
				return errHandAborted
			}
			if !hand.StillToAct(p) {
				continue
			}
			if err := s.solicit(ctx, logger, hand, p); err != nil {
				return err
			}
			if hand.Over() || hand.RoundComplete() {
				break
			}
		}
	}
	return nil
}

// solicit requests an action from one player and applies the outcome:
// their parsed action, a synthesized fold on timeout or disconnect, or a
// re-request after a protocol or legality error.
func (s *Session) solicit(ctx context.Context, logger zerolog.Logger, hand *game.Hand, p game.PlayerID) error {
	client, ok := s.clients[p]
	if !ok || client.IsClosed() {
		s.applyFold(logger, hand, p, "disconnected")
		return nil
	}

	for {
		s.drainActions()

		if err := client.Send(protocol.RequestAction{
			PlayerID: int(p),
			TimeLeft: int(s.cfg.TurnTimeout.Seconds()),
		}); err != nil {
			s.dropClient(logger, p, "unreachable")
			s.applyFold(logger, hand, p, "disconnected")
			return nil
		}

		env, outcome := s.waitForAction(ctx, client)
		switch outcome {
		case waitShutdown:
			return errHandAborted

		case waitTimeout:
			_ = client.Send(protocol.Text{Body: "Timeout!"})
			logger.Warn().Int("player_id", int(p)).Msg("Turn timed out")
			s.applyFold(logger, hand, p, "timeout")
			return nil

		case waitDisconnect:
			s.dropClient(logger, p, "connection lost")
			s.applyFold(logger, hand, p, "disconnected")
			return nil

		case waitProtocolError:
			_ = client.Send(protocol.Text{Body: fmt.Sprintf("Invalid action: %v. Try again.", env.Err)})
			continue

		case waitAction:
			act, err := convertAction(p, env.Action)
			if err != nil {
				_ = client.Send(protocol.Text{Body: fmt.Sprintf("Invalid action: %v. Try again.", err)})
				continue
			}
			if err := hand.Apply(p, act); err != nil {
				_ = client.Send(protocol.Text{Body: fmt.Sprintf("Invalid action: %v. Try again.", err)})
				continue
			}
			logger.Debug().
				Int("player_id", int(p)).
				Str("action", act.Kind.String()).
				Int("amount", act.Amount).
				Msg("Action applied")
			s.broadcastState(hand)
			return nil
		}
	}
}

type waitOutcome int

const (
	waitAction waitOutcome = iota
	waitProtocolError
	waitTimeout
	waitDisconnect
	waitShutdown
)

// waitForAction blocks until the solicited client acts, times out, or
// disconnects. Records from other players are answered with an error
// message and do not advance the turn.
func (s *Session) waitForAction(ctx context.Context, client *Client) (ActionEnvelope, waitOutcome) {
	timer := s.clock.NewTimer(s.cfg.TurnTimeout)
	defer timer.Stop()

	for {
		select {
		case env := <-s.actions:
			if env.Player != client.ID {
				if other, ok := s.clients[env.Player]; ok {
					_ = other.Send(protocol.Text{Body: "Not your turn."})
				}
				continue
			}
			if env.Err != nil {
				return env, waitProtocolError
			}
			return env, waitAction

		case <-client.Done():
			return ActionEnvelope{}, waitDisconnect

		case <-timer.C:
			return ActionEnvelope{}, waitTimeout

		case <-ctx.Done():
			return ActionEnvelope{}, waitShutdown
		}
	}
}

// convertAction validates a wire action against the sender's identity and
// maps it to the engine's action type.
func convertAction(p game.PlayerID, msg *protocol.PlayerAction) (game.Action, error) {
	if msg.PlayerID != int(p) {
		return game.Action{}, fmt.Errorf("action names player %d", msg.PlayerID)
	}
	kind, err := game.ActionKindFromCode(msg.Action)
	if err != nil {
		return game.Action{}, err
	}
	return game.Action{Kind: kind, Amount: msg.Amount}, nil
}

// applyFold resolves a turn with a synthesized fold and broadcasts the
// resulting state. Used for timeouts and disconnects.
func (s *Session) applyFold(logger zerolog.Logger, hand *game.Hand, p game.PlayerID, reason string) {
	if err := hand.Apply(p, game.Action{Kind: game.Fold}); err != nil {
		logger.Debug().Err(err).Int("player_id", int(p)).Str("reason", reason).Msg("Synthesized fold not applicable")
		return
	}
	logger.Info().Int("player_id", int(p)).Str("reason", reason).Msg("Folded on player's behalf")
	s.broadcastState(hand)
}

// dropClient removes a disconnected player from the connection table. The
// socket is closed exactly once.
func (s *Session) dropClient(logger zerolog.Logger, p game.PlayerID, reason string) {
	client, ok := s.clients[p]
	if !ok {
		return
	}
	_ = client.Send(protocol.Disconnect{Reason: reason})
	client.Close()
	delete(s.clients, p)
	logger.Warn().Int("player_id", int(p)).Str("reason", reason).Msg("Player disconnected")
}

// drainActions discards stale envelopes from previous turns; late arrivals
// after a timeout are never applied.
func (s *Session) drainActions() {
	for {
		select {
		case <-s.actions:
		default:
			return
		}
	}
}

// broadcast sends a message to every connected client. A failed send marks
// that client disconnected without stalling the driver.
func (s *Session) broadcast(msg protocol.Message) {
	for _, p := range s.seats {
		s.sendTo(p, msg)
	}
}

// sendTo delivers a message to one player, dropping them on failure.
func (s *Session) sendTo(p game.PlayerID, msg protocol.Message) {
	client, ok := s.clients[p]
	if !ok || client.IsClosed() {
		return
	}
	if err := client.Send(msg); err != nil {
		s.dropClient(s.logger, p, "send failed")
	}
}

// broadcastState converts the hand's snapshot to the wire shape and sends
// it to everyone.
func (s *Session) broadcastState(hand *game.Hand) {
	st := hand.GameState()

	msg := protocol.GameState{
		RoundNum:       st.RoundNum,
		Round:          st.Round,
		CommunityCards: st.CommunityCards,
		Pot:            st.Pot,
		CurrentBet:     st.CurrentBet,
		MinRaise:       st.MinRaise,
		MaxRaise:       st.MaxRaise,
		CurrentPlayer:  make([]int, 0, len(st.CurrentPlayers)),
		PlayerBets:     make(map[string]int, len(st.PlayerBets)),
		PlayerActions:  make(map[string]string, len(st.PlayerActions)),
		SidePots:       make([]protocol.SidePot, 0, len(st.SidePots)),
	}
	for _, p := range st.CurrentPlayers {
		msg.CurrentPlayer = append(msg.CurrentPlayer, int(p))
	}
	for p, amount := range st.PlayerBets {
		msg.PlayerBets[strconv.Itoa(int(p))] = amount
	}
	for p, action := range st.PlayerActions {
		msg.PlayerActions[strconv.Itoa(int(p))] = action
	}
	for _, pot := range st.SidePots {
		wire := protocol.SidePot{Amount: pot.Amount, EligiblePlayers: make([]int, 0, len(pot.Eligible))}
		for _, p := range pot.Eligible {
			wire.EligiblePlayers = append(wire.EligiblePlayers, int(p))
		}
		msg.SidePots = append(msg.SidePots, wire)
	}

	s.broadcast(msg)
}

func (s *Session) snapshotMoney() map[string]int {
	return moneyKeys(s.money)
}

func (s *Session) snapshotDelta() map[string]int {
	return moneyKeys(s.delta)
}

func moneyKeys(in map[game.PlayerID]int) map[string]int {
	out := make(map[string]int, len(in))
	for p, v := range in {
		out[strconv.Itoa(int(p))] = v
	}
	return out
}
