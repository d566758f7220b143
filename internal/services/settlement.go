package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"miniapp-games/internal/metrics"
	"miniapp-games/internal/models"
)

// SettlementResult is what the wallet store reported for a settled round.
type SettlementResult struct {
	Balance       float64
	TransactionID string
	// TransactionErr is set when money moved but the ledger row could not be written.
	TransactionErr error
}

// SettlementBridge turns a resolved round into wallet mutations: the stake is taken first, the
// payout is credited only after that succeeded, and the round is logged last.
type SettlementBridge struct {
	store   WalletStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewSettlementBridge(store WalletStore, m *metrics.Metrics, logger *zap.Logger) *SettlementBridge {
	return &SettlementBridge{
		store:   store,
		metrics: m,
		logger:  logger.With(zap.String("component", "settlement")),
	}
}

func (b *SettlementBridge) Settle(ctx context.Context, round *models.Round) (*SettlementResult, error) {
	start := time.Now()
	log := b.logger.With(zap.String("round_id", round.ID), zap.String("user_id", round.UserID))

	balance, err := b.store.AdjustBalance(ctx, models.AdjustRequest{
		UserID:         round.UserID,
		Amount:         round.BetAmount,
		Direction:      models.AdjustDecrement,
		Bucket:         round.Bucket,
		IdempotencyKey: round.DebitKey(),
	})
	if err != nil {
		log.Warn("stake debit failed", zap.Float64("bet", round.BetAmount), zap.Error(err))
		b.metrics.SettlementStageFailed(round.GameID, metrics.StageDebit)
		return nil, &models.SettlementDebitError{RoundID: round.ID, Err: err}
	}

	if round.IsWin && round.Payout > 0 {
		balance, err = b.credit(ctx, round)
		if err != nil {
			log.Error("payout credit failed after stake was taken; round needs support follow-up",
				zap.Float64("bet", round.BetAmount),
				zap.Float64("payout", round.Payout),
				zap.Error(err),
			)
			b.metrics.SettlementStageFailed(round.GameID, metrics.StageCredit)
			return nil, &models.SettlementCreditError{RoundID: round.ID, Payout: round.Payout, Err: err}
		}
	}

	result := &SettlementResult{Balance: balance}
	result.TransactionID, result.TransactionErr = b.record(ctx, round)

	b.metrics.RoundSettled(round.GameID, round.IsWin, round.BetAmount, round.Payout, time.Since(start))
	log.Info("round settled",
		zap.Bool("win", round.IsWin),
		zap.Float64("outcome", round.OutcomeValue),
		zap.Float64("payout", round.Payout),
		zap.Float64("balance", balance),
	)
	return result, nil
}

// RetryCredit re-sends a failed payout under the round's original credit key, so a credit that
// did land the first time is not applied again.
func (b *SettlementBridge) RetryCredit(ctx context.Context, round *models.Round) (*SettlementResult, error) {
	log := b.logger.With(zap.String("round_id", round.ID), zap.String("user_id", round.UserID))

	balance, err := b.credit(ctx, round)
	if err != nil {
		log.Error("payout credit retry failed", zap.Float64("payout", round.Payout), zap.Error(err))
		b.metrics.SettlementStageFailed(round.GameID, metrics.StageCredit)
		return nil, &models.SettlementCreditError{RoundID: round.ID, Payout: round.Payout, Err: err}
	}

	result := &SettlementResult{Balance: balance}
	result.TransactionID, result.TransactionErr = b.record(ctx, round)

	log.Info("payout credit retried", zap.Float64("payout", round.Payout), zap.Float64("balance", balance))
	return result, nil
}

func (b *SettlementBridge) credit(ctx context.Context, round *models.Round) (float64, error) {
	return b.store.AdjustBalance(ctx, models.AdjustRequest{
		UserID:         round.UserID,
		Amount:         round.Payout,
		Direction:      models.AdjustIncrement,
		Bucket:         round.Bucket,
		IdempotencyKey: round.CreditKey(),
	})
}

func (b *SettlementBridge) record(ctx context.Context, round *models.Round) (string, error) {
	id, err := b.store.RecordTransaction(ctx, round.Transaction())
	if err != nil {
		b.logger.Error("failed to record round transaction",
			zap.String("round_id", round.ID),
			zap.String("user_id", round.UserID),
			zap.Error(err),
		)
		b.metrics.SettlementStageFailed(round.GameID, metrics.StageTransaction)
		return "", err
	}
	return id, nil
}
