package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"miniapp-games/internal/metrics"
	"miniapp-games/internal/models"
)

const (
	defaultHistoryRetries  = 3
	defaultHistoryInterval = 100 * time.Millisecond
)

// HistoryFeed reads the player's wallet and recent rounds from the wallet store.
type HistoryFeed struct {
	store    WalletStore
	gameID   string
	bucket   string
	limit    int
	retries  uint64
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewHistoryFeed(store WalletStore, gameID, bucket string, limit int, m *metrics.Metrics, logger *zap.Logger) *HistoryFeed {
	return &HistoryFeed{
		store:    store,
		gameID:   gameID,
		bucket:   bucket,
		limit:    limit,
		retries:  defaultHistoryRetries,
		interval: defaultHistoryInterval,
		metrics:  m,
		logger:   logger.With(zap.String("component", "history_feed")),
	}
}

// WithRetry overrides the history retry policy.
func (f *HistoryFeed) WithRetry(retries uint64, interval time.Duration) *HistoryFeed {
	f.retries = retries
	f.interval = interval
	return f
}

func (f *HistoryFeed) Wallet(ctx context.Context, userID string) (*models.WalletSnapshot, error) {
	wallet, err := f.store.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrWalletNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	snapshot := wallet.Snapshot(f.bucket)
	return &snapshot, nil
}

// History lists recent rounds, retrying with exponential backoff. The final failure is returned
// as a HistoryRefreshError.
func (f *HistoryFeed) History(ctx context.Context, userID string) ([]models.RoundHistoryEntry, error) {
	var rounds []models.RoundHistoryEntry

	op := func() error {
		var err error
		rounds, err = f.store.ListRecentRounds(ctx, userID, f.gameID, f.limit)
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.interval
	expo.MaxInterval = 10 * f.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, f.retries), ctx)

	notify := func(err error, wait time.Duration) {
		f.logger.Debug("history refresh retry", zap.String("user_id", userID), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		f.metrics.HistoryRefreshFailed(f.gameID)
		f.logger.Warn("history refresh failed", zap.String("user_id", userID), zap.Error(err))
		return nil, &models.HistoryRefreshError{Err: err}
	}

	if rounds == nil {
		rounds = []models.RoundHistoryEntry{}
	}
	return rounds, nil
}

func (f *HistoryFeed) GameID() string { return f.gameID }
func (f *HistoryFeed) Bucket() string { return f.bucket }
