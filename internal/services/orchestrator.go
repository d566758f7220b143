package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"miniapp-games/internal/config"
	"miniapp-games/internal/dice"
	"miniapp-games/internal/metrics"
	"miniapp-games/internal/models"
)

var ErrSessionClosed = errors.New("game session closed")

// RoundDeps are shared by every orchestrator of one game.
type RoundDeps struct {
	Game              config.DiceConfig
	Outcomes          OutcomeSource
	Settlement        *SettlementBridge
	Feed              *HistoryFeed
	Broadcaster       Broadcaster
	Events            EventPublisher
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	SettlementTimeout time.Duration
}

func (d *RoundDeps) withDefaults() *RoundDeps {
	if d.Broadcaster != nil && d.Events != nil {
		return d
	}
	out := *d
	if out.Broadcaster == nil {
		out.Broadcaster = noopBroadcaster{}
	}
	if out.Events == nil {
		out.Events = NoopPublisher{}
	}
	return &out
}

// RoundTicket tracks a submitted round until it settles or fails.
type RoundTicket struct {
	Round *models.Round
	done  chan struct{}
	err   error
}

func newRoundTicket(round *models.Round) *RoundTicket {
	return &RoundTicket{Round: round, done: make(chan struct{})}
}

func (t *RoundTicket) finish(err error) {
	t.err = err
	close(t.done)
}

func (t *RoundTicket) Done() <-chan struct{} { return t.done }

// Err is only meaningful after Done is closed.
func (t *RoundTicket) Err() error { return t.err }

// Wait blocks until the round finished or ctx ends. The round keeps running if ctx ends first.
func (t *RoundTicket) Wait(ctx context.Context) (*models.Round, error) {
	select {
	case <-t.done:
		return t.Round, t.err
	case <-ctx.Done():
		return t.Round, ctx.Err()
	}
}

// RoundOrchestrator runs one player's dice rounds. It owns the cached wallet and history the
// player sees: the cache is changed optimistically during a round and overwritten from the wallet
// store once the round settles. At most one round is in flight.
type RoundOrchestrator struct {
	deps   *RoundDeps
	userID string
	logger *zap.Logger

	mu            sync.Mutex
	state         models.RoundState
	threshold     int
	direction     models.Direction
	wallet        *models.WalletSnapshot
	history       []models.RoundHistoryEntry
	historyStale  bool
	current       *models.Round
	lastRound     *models.Round
	lastErr       string
	pendingCredit *models.Round
	lastActive    time.Time

	closing chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

func NewRoundOrchestrator(userID string, deps *RoundDeps) *RoundOrchestrator {
	deps = deps.withDefaults()

	return &RoundOrchestrator{
		deps:       deps,
		userID:     userID,
		logger:     deps.Logger.With(zap.String("component", "orchestrator"), zap.String("user_id", userID)),
		state:      models.StateIdle,
		threshold:  deps.Game.DefaultThreshold,
		direction:  models.DirectionUnder,
		history:    []models.RoundHistoryEntry{},
		lastActive: time.Now(),
		closing:    make(chan struct{}),
	}
}

// Load fills the cache from the wallet store. A missing wallet is an error; history failures only
// mark the history stale.
func (o *RoundOrchestrator) Load(ctx context.Context) error {
	wallet, err := o.deps.Feed.Wallet(ctx, o.userID)
	if err != nil {
		return err
	}
	history, herr := o.deps.Feed.History(ctx, o.userID)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.wallet = wallet
	o.applyHistory(history, herr)
	return nil
}

func (o *RoundOrchestrator) Snapshot() models.DiceStateView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *RoundOrchestrator) snapshotLocked() models.DiceStateView {
	view := models.DiceStateView{
		State:         o.state,
		Threshold:     o.threshold,
		Direction:     o.direction,
		Quote:         dice.Quote(o.threshold, o.direction, o.deps.Game.HouseEdgeFactor, 0),
		History:       append([]models.RoundHistoryEntry(nil), o.history...),
		HistoryStale:  o.historyStale,
		CurrentRound:  copyRound(o.current),
		LastRound:     copyRound(o.lastRound),
		LastError:     o.lastErr,
		PendingCredit: copyRound(o.pendingCredit),
	}
	if o.wallet != nil {
		w := *o.wallet
		view.Wallet = &w
	}
	return view
}

func (o *RoundOrchestrator) State() models.RoundState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetThreshold clamps to the configured bounds and returns the resulting odds.
func (o *RoundOrchestrator) SetThreshold(threshold int) (models.DiceQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != models.StateIdle {
		return models.DiceQuote{}, models.ErrRoundInProgress
	}
	o.touch()
	o.threshold = dice.ClampThreshold(threshold, o.deps.Game.MinThreshold, o.deps.Game.MaxThreshold)
	return dice.Quote(o.threshold, o.direction, o.deps.Game.HouseEdgeFactor, 0), nil
}

// ToggleDirection flips the direction and mirrors the threshold, keeping the win probability.
func (o *RoundOrchestrator) ToggleDirection() (models.DiceQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.setDirectionLocked(o.direction.Opposite())
}

// SetDirection toggles only when direction differs from the current one.
func (o *RoundOrchestrator) SetDirection(direction models.Direction) (models.DiceQuote, error) {
	if !direction.Valid() {
		return models.DiceQuote{}, &models.InvalidBetError{Reason: fmt.Sprintf("unknown direction %q", direction)}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setDirectionLocked(direction)
}

func (o *RoundOrchestrator) setDirectionLocked(direction models.Direction) (models.DiceQuote, error) {
	if o.state != models.StateIdle {
		return models.DiceQuote{}, models.ErrRoundInProgress
	}
	o.touch()
	if o.direction != direction {
		o.direction = direction
		o.threshold = dice.ClampThreshold(dice.ToggleThreshold(o.threshold), o.deps.Game.MinThreshold, o.deps.Game.MaxThreshold)
	}
	return dice.Quote(o.threshold, o.direction, o.deps.Game.HouseEdgeFactor, 0), nil
}

func (o *RoundOrchestrator) Quote(bet float64) (models.DiceQuote, error) {
	if bet != 0 {
		if err := o.checkBetShape(bet); err != nil {
			return models.DiceQuote{}, err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return dice.Quote(o.threshold, o.direction, o.deps.Game.HouseEdgeFactor, bet), nil
}

// Submit validates and starts a round. The stake is taken from the cached balance right away;
// the returned ticket completes once the round has settled or failed.
func (o *RoundOrchestrator) Submit(bet float64) (*RoundTicket, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrSessionClosed
	}
	if o.state != models.StateIdle {
		return nil, models.ErrRoundInProgress
	}
	o.touch()

	o.state = models.StateValidating
	if err := o.validateLocked(bet); err != nil {
		o.state = models.StateIdle
		o.lastErr = models.UserMessage(err)
		return nil, err
	}

	prob := dice.WinProbability(o.threshold, o.direction)
	round := models.NewRound(o.userID, o.deps.Game.GameID, bet, o.threshold, o.direction,
		prob, dice.Multiplier(prob, o.deps.Game.HouseEdgeFactor), o.deps.Feed.Bucket())

	o.state = models.StateDebiting
	before := o.wallet.Balance
	o.wallet.Balance = models.RoundMoney(before - bet)
	o.current = round
	o.lastErr = ""

	o.state = models.StateSuspense
	ticket := newRoundTicket(round)

	o.wg.Add(1)
	go o.run(round, before, ticket)

	o.logger.Debug("round submitted",
		zap.String("round_id", round.ID),
		zap.Float64("bet", bet),
		zap.Int("threshold", round.Threshold),
		zap.String("direction", string(round.Direction)),
	)
	return ticket, nil
}

func (o *RoundOrchestrator) checkBetShape(bet float64) error {
	switch {
	case math.IsNaN(bet) || math.IsInf(bet, 0):
		return &models.InvalidBetError{Reason: "bet must be a number"}
	case bet <= 0:
		return &models.InvalidBetError{Reason: "bet must be positive"}
	case models.RoundMoney(bet) != bet:
		return &models.InvalidBetError{Reason: "bet has more than two decimal places"}
	case bet < o.deps.Game.MinBet:
		return &models.InvalidBetError{Reason: fmt.Sprintf("minimum bet is %s", models.FormatAmount(o.deps.Game.MinBet))}
	case o.deps.Game.MaxBet > 0 && bet > o.deps.Game.MaxBet:
		return &models.InvalidBetError{Reason: fmt.Sprintf("maximum bet is %s", models.FormatAmount(o.deps.Game.MaxBet))}
	}
	return nil
}

func (o *RoundOrchestrator) validateLocked(bet float64) error {
	if err := o.checkBetShape(bet); err != nil {
		return err
	}
	if o.wallet == nil {
		return fmt.Errorf("wallet not loaded")
	}
	if bet > o.wallet.Balance {
		return &models.InsufficientBalanceError{Bet: bet, Balance: o.wallet.Balance}
	}
	return nil
}

func (o *RoundOrchestrator) run(round *models.Round, before float64, ticket *RoundTicket) {
	defer o.wg.Done()

	o.suspense(round)
	o.setState(models.StateResolving)

	ctx, cancel := context.WithTimeout(context.Background(), o.deps.SettlementTimeout)
	defer cancel()

	roll, err := o.deps.Outcomes.Draw(ctx, o.userID)
	if err != nil {
		err = fmt.Errorf("failed to draw outcome: %w", err)
		o.fail(round, before, metrics.StageOutcome, err)
		ticket.finish(err)
		return
	}

	isWin := dice.IsWin(roll.Value, round.Threshold, round.Direction)
	payout := 0.0
	if isWin {
		payout = dice.PotentialPayout(round.BetAmount, round.PayoutMultiplier)
	}

	o.mu.Lock()
	err = round.Resolve(*roll, isWin, payout)
	if err == nil {
		o.state = models.StateSettling
	}
	o.mu.Unlock()
	if err != nil {
		o.fail(round, before, metrics.StageOutcome, err)
		ticket.finish(err)
		return
	}

	result, err := o.deps.Settlement.Settle(ctx, round)
	if err != nil {
		o.failSettlement(round, before, err)
		ticket.finish(err)
		return
	}

	o.succeed(round, before, result)
	ticket.finish(nil)
}

// suspense broadcasts decorative values until the suspense timer fires or the session closes.
// Nothing shown here has any bearing on the outcome.
func (o *RoundOrchestrator) suspense(round *models.Round) {
	duration := o.deps.Game.SuspenseDuration()
	if duration <= 0 {
		return
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	ticker := time.NewTicker(o.deps.Game.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.deps.Broadcaster.BroadcastDiceTick(o.userID, round.ID, float64(rand.IntN(10000))/100)
		case <-timer.C:
			return
		case <-o.closing:
			return
		}
	}
}

func (o *RoundOrchestrator) succeed(round *models.Round, before float64, result *SettlementResult) {
	o.mu.Lock()
	o.wallet.Balance = models.RoundMoney(before - round.BetAmount + round.Payout)
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.deps.SettlementTimeout)
	defer cancel()

	wallet, werr := o.deps.Feed.Wallet(ctx, o.userID)
	history, herr := o.deps.Feed.History(ctx, o.userID)

	o.mu.Lock()
	if werr != nil {
		o.logger.Warn("wallet refresh after round failed; using settlement balance",
			zap.String("round_id", round.ID), zap.Error(werr))
		o.wallet.Balance = result.Balance
	} else {
		o.wallet = wallet
	}
	o.applyHistory(history, herr)
	o.lastRound = round
	o.current = nil
	o.state = models.StateIdle
	snapshot := *o.wallet
	o.mu.Unlock()

	if err := o.deps.Events.PublishRoundSettled(ctx, newRoundSettledEvent(round, snapshot.Balance)); err != nil {
		o.logger.Warn("failed to publish round event", zap.String("round_id", round.ID), zap.Error(err))
	}
	o.deps.Broadcaster.BroadcastDiceResult(o.userID, round)
	o.deps.Broadcaster.BroadcastBalance(o.userID, &snapshot)
}

func (o *RoundOrchestrator) failSettlement(round *models.Round, before float64, err error) {
	var creditErr *models.SettlementCreditError
	if !errors.As(err, &creditErr) {
		stage := metrics.StageDebit
		if errors.Is(err, context.DeadlineExceeded) {
			stage = metrics.StageTimeout
		}
		o.fail(round, before, stage, err)
		return
	}

	// The stake is gone but the payout is not. The cache stays debited and the round is kept so
	// the credit can be retried; the player gets back to IDLE only after the reconcile attempt.
	message := models.UserMessage(err)

	o.mu.Lock()
	o.state = models.StateFailed
	o.pendingCredit = round
	o.wallet.Balance = models.RoundMoney(before - round.BetAmount)
	o.lastErr = message
	o.current = nil
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.deps.SettlementTimeout)
	defer cancel()
	wallet, werr := o.deps.Feed.Wallet(ctx, o.userID)

	o.mu.Lock()
	if werr == nil {
		o.wallet = wallet
	}
	o.state = models.StateIdle
	snapshot := *o.wallet
	o.mu.Unlock()

	if werr != nil {
		o.logger.Warn("wallet reconcile after credit failure failed", zap.String("round_id", round.ID), zap.Error(werr))
	}
	o.logger.Error("round failed after stake was taken",
		zap.String("round_id", round.ID),
		zap.String("stage", metrics.StageCredit),
		zap.Error(err),
	)
	o.deps.Metrics.RoundFailed(round.GameID, metrics.StageCredit)
	o.deps.Broadcaster.BroadcastDiceFailed(o.userID, round.ID, message)
	o.deps.Broadcaster.BroadcastBalance(o.userID, &snapshot)
}

// fail rolls the cached balance back to its value before the round and returns to IDLE.
func (o *RoundOrchestrator) fail(round *models.Round, before float64, stage string, err error) {
	message := models.UserMessage(err)

	o.mu.Lock()
	o.state = models.StateFailed
	o.wallet.Balance = before
	o.lastErr = message
	o.current = nil
	o.state = models.StateIdle
	snapshot := *o.wallet
	o.mu.Unlock()

	o.logger.Warn("round failed",
		zap.String("round_id", round.ID),
		zap.String("stage", stage),
		zap.Error(err),
	)
	o.deps.Metrics.RoundFailed(round.GameID, stage)
	o.deps.Broadcaster.BroadcastDiceFailed(o.userID, round.ID, message)
	o.deps.Broadcaster.BroadcastBalance(o.userID, &snapshot)
}

// RetryCredit re-sends the payout of the round whose credit failed.
func (o *RoundOrchestrator) RetryCredit(ctx context.Context) (*models.Round, error) {
	o.mu.Lock()
	if o.state != models.StateIdle {
		o.mu.Unlock()
		return nil, models.ErrRoundInProgress
	}
	round := o.pendingCredit
	if round == nil {
		o.mu.Unlock()
		return nil, models.ErrNoPendingCredit
	}
	o.touch()
	o.state = models.StateSettling
	o.mu.Unlock()

	settleCtx, cancel := context.WithTimeout(ctx, o.deps.SettlementTimeout)
	defer cancel()

	result, err := o.deps.Settlement.RetryCredit(settleCtx, round)
	if err != nil {
		o.mu.Lock()
		o.state = models.StateIdle
		o.lastErr = models.UserMessage(err)
		o.mu.Unlock()
		return nil, err
	}

	o.mu.Lock()
	o.pendingCredit = nil
	o.lastErr = ""
	o.lastRound = round
	o.wallet.Balance = result.Balance
	o.state = models.StateIdle
	o.mu.Unlock()

	if _, err := o.Refresh(ctx); err != nil {
		o.logger.Warn("refresh after credit retry failed", zap.String("round_id", round.ID), zap.Error(err))
	}

	o.mu.Lock()
	snapshot := *o.wallet
	o.mu.Unlock()

	if err := o.deps.Events.PublishRoundSettled(ctx, newRoundSettledEvent(round, snapshot.Balance)); err != nil {
		o.logger.Warn("failed to publish round event", zap.String("round_id", round.ID), zap.Error(err))
	}
	o.deps.Broadcaster.BroadcastBalance(o.userID, &snapshot)
	return copyRound(round), nil
}

// Refresh reconciles the cache with the wallet store. Only allowed between rounds.
func (o *RoundOrchestrator) Refresh(ctx context.Context) (models.DiceStateView, error) {
	o.mu.Lock()
	if o.state != models.StateIdle {
		o.mu.Unlock()
		return models.DiceStateView{}, models.ErrRoundInProgress
	}
	o.touch()
	o.mu.Unlock()

	if err := o.reconcileWallet(ctx); err != nil {
		return models.DiceStateView{}, err
	}
	history, herr := o.deps.Feed.History(ctx, o.userID)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyHistory(history, herr)
	return o.snapshotLocked(), nil
}

func (o *RoundOrchestrator) reconcileWallet(ctx context.Context) error {
	wallet, err := o.deps.Feed.Wallet(ctx, o.userID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.wallet = wallet
	o.mu.Unlock()
	o.deps.Broadcaster.BroadcastBalance(o.userID, wallet)
	return nil
}

func (o *RoundOrchestrator) applyHistory(history []models.RoundHistoryEntry, err error) {
	if err != nil {
		o.historyStale = true
		return
	}
	o.history = history
	o.historyStale = false
}

// Close stops the suspense timers. A round in flight skips the rest of its suspense and still
// resolves and settles; Close waits for that.
func (o *RoundOrchestrator) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.closing)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// IdleSince reports when the player last acted, and false while a round is in flight.
func (o *RoundOrchestrator) IdleSince() (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActive, o.state == models.StateIdle
}

func (o *RoundOrchestrator) setState(state models.RoundState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *RoundOrchestrator) touch() {
	o.lastActive = time.Now()
}

func copyRound(r *models.Round) *models.Round {
	if r == nil {
		return nil
	}
	out := *r
	if r.Proof != nil {
		proof := *r.Proof
		out.Proof = &proof
	}
	return &out
}
