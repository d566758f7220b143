package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"miniapp-games/internal/metrics"
	"miniapp-games/internal/models"
	"miniapp-games/internal/services"
)

func resolvedRound(t *testing.T, outcome float64) *models.Round {
	t.Helper()
	round := models.NewRound(testUser, "dice", 10, 50, models.DirectionUnder, 50, 1.96, models.BucketBalance)
	isWin := outcome < 50
	require.NoError(t, round.Resolve(models.FairRoll{Value: outcome, Nonce: 1}, isWin, 19.6))
	return round
}

func isAdjust(key string, direction models.AdjustDirection, amount float64) interface{} {
	return mock.MatchedBy(func(r models.AdjustRequest) bool {
		return r.IdempotencyKey == key && r.Direction == direction && r.Amount == amount &&
			r.Bucket == models.BucketBalance && r.UserID == testUser
	})
}

func TestSettleWinDebitsThenCreditsThenRecords(t *testing.T) {
	round := resolvedRound(t, 10)
	store := new(MockWalletStore)

	var order []string
	store.On("AdjustBalance", mock.Anything, isAdjust(round.DebitKey(), models.AdjustDecrement, 10)).
		Return(90.0, nil).Run(func(mock.Arguments) { order = append(order, "debit") }).Once()
	store.On("AdjustBalance", mock.Anything, isAdjust(round.CreditKey(), models.AdjustIncrement, 19.6)).
		Return(109.6, nil).Run(func(mock.Arguments) { order = append(order, "credit") }).Once()
	store.On("RecordTransaction", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.RoundID == round.ID && tx.Amount == 9.6 && tx.Kind == models.TransactionKindGameRound
	})).Return("tx_1", nil).Run(func(mock.Arguments) { order = append(order, "record") }).Once()

	bridge := services.NewSettlementBridge(store, metrics.New(), zap.NewNop())
	result, err := bridge.Settle(context.Background(), round)
	require.NoError(t, err)

	assert.Equal(t, 109.6, result.Balance)
	assert.Equal(t, "tx_1", result.TransactionID)
	assert.NoError(t, result.TransactionErr)
	assert.Equal(t, []string{"debit", "credit", "record"}, order)
	store.AssertExpectations(t)
}

func TestSettleLossSkipsCredit(t *testing.T) {
	round := resolvedRound(t, 80)
	store := new(MockWalletStore)
	store.On("AdjustBalance", mock.Anything, isAdjust(round.DebitKey(), models.AdjustDecrement, 10)).Return(90.0, nil).Once()
	store.On("RecordTransaction", mock.Anything, mock.Anything).Return("tx_2", nil).Once()

	bridge := services.NewSettlementBridge(store, metrics.New(), zap.NewNop())
	result, err := bridge.Settle(context.Background(), round)
	require.NoError(t, err)
	assert.Equal(t, 90.0, result.Balance)
	store.AssertNumberOfCalls(t, "AdjustBalance", 1)
}

func TestSettleDebitFailureNeverCredits(t *testing.T) {
	round := resolvedRound(t, 10)
	store := new(MockWalletStore)
	store.On("AdjustBalance", mock.Anything, mock.Anything).Return(0.0, errors.New("boom")).Once()

	m := metrics.New()
	bridge := services.NewSettlementBridge(store, m, zap.NewNop())
	_, err := bridge.Settle(context.Background(), round)

	var debitErr *models.SettlementDebitError
	require.ErrorAs(t, err, &debitErr)
	assert.Equal(t, round.ID, debitErr.RoundID)
	store.AssertNumberOfCalls(t, "AdjustBalance", 1)
	store.AssertNotCalled(t, "RecordTransaction", mock.Anything, mock.Anything)
}

func TestSettleCreditFailureSurfacesDistinctError(t *testing.T) {
	round := resolvedRound(t, 10)
	store := new(MockWalletStore)
	store.On("AdjustBalance", mock.Anything, isAdjust(round.DebitKey(), models.AdjustDecrement, 10)).Return(90.0, nil).Once()
	store.On("AdjustBalance", mock.Anything, isAdjust(round.CreditKey(), models.AdjustIncrement, 19.6)).Return(0.0, errors.New("timeout")).Once()

	bridge := services.NewSettlementBridge(store, metrics.New(), zap.NewNop())
	_, err := bridge.Settle(context.Background(), round)

	var creditErr *models.SettlementCreditError
	require.ErrorAs(t, err, &creditErr)
	assert.Contains(t, creditErr.UserMessage(), "$19.60")
	store.AssertNotCalled(t, "RecordTransaction", mock.Anything, mock.Anything)
}

func TestSettleTransactionFailureIsNotARoundFailure(t *testing.T) {
	round := resolvedRound(t, 80)
	store := new(MockWalletStore)
	store.On("AdjustBalance", mock.Anything, mock.Anything).Return(90.0, nil).Once()
	store.On("RecordTransaction", mock.Anything, mock.Anything).Return("", errors.New("ledger down")).Once()

	bridge := services.NewSettlementBridge(store, metrics.New(), zap.NewNop())
	result, err := bridge.Settle(context.Background(), round)
	require.NoError(t, err)
	assert.Equal(t, 90.0, result.Balance)
	assert.Error(t, result.TransactionErr)
}

func TestRetryCreditReusesRoundKey(t *testing.T) {
	round := resolvedRound(t, 10)
	store := new(MockWalletStore)
	store.On("AdjustBalance", mock.Anything, isAdjust(round.CreditKey(), models.AdjustIncrement, 19.6)).Return(109.6, nil).Twice()
	store.On("RecordTransaction", mock.Anything, mock.Anything).Return("tx_3", nil).Twice()

	bridge := services.NewSettlementBridge(store, metrics.New(), zap.NewNop())
	for i := 0; i < 2; i++ {
		result, err := bridge.RetryCredit(context.Background(), round)
		require.NoError(t, err)
		assert.Equal(t, 109.6, result.Balance)
	}
	store.AssertExpectations(t)
}
