package services_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"miniapp-games/internal/models"
)

// MockWalletStore is a mock implementation of WalletStore
type MockWalletStore struct {
	mock.Mock
}

func (m *MockWalletStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletStore) AdjustBalance(ctx context.Context, req models.AdjustRequest) (float64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockWalletStore) RecordTransaction(ctx context.Context, tx *models.Transaction) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

func (m *MockWalletStore) ListRecentRounds(ctx context.Context, userID, gameID string, limit int) ([]models.RoundHistoryEntry, error) {
	args := m.Called(ctx, userID, gameID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoundHistoryEntry), args.Error(1)
}

// fixedOutcomes always rolls the same value.
type fixedOutcomes struct {
	value float64
	err   error

	mu    sync.Mutex
	calls int
}

func (f *fixedOutcomes) Draw(ctx context.Context, userID string) (*models.FairRoll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.FairRoll{Value: f.value, ServerSeedHash: "hash", ClientSeed: "client", Nonce: int64(f.calls - 1)}, nil
}

func (f *fixedOutcomes) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordedBroadcast struct {
	kind    string
	roundID string
	message string
	balance float64
}

// recordingBroadcaster keeps every push for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedBroadcast
}

func (b *recordingBroadcaster) add(e recordedBroadcast) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBroadcaster) BroadcastDiceTick(userID, roundID string, value float64) {
	b.add(recordedBroadcast{kind: "tick", roundID: roundID})
}

func (b *recordingBroadcaster) BroadcastDiceResult(userID string, round *models.Round) {
	b.add(recordedBroadcast{kind: "result", roundID: round.ID})
}

func (b *recordingBroadcaster) BroadcastDiceFailed(userID, roundID, message string) {
	b.add(recordedBroadcast{kind: "failed", roundID: roundID, message: message})
}

func (b *recordingBroadcaster) BroadcastBalance(userID string, wallet *models.WalletSnapshot) {
	b.add(recordedBroadcast{kind: "balance", balance: wallet.Balance})
}

func (b *recordingBroadcaster) count(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (b *recordingBroadcaster) last(kind string) (recordedBroadcast, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].kind == kind {
			return b.events[i], true
		}
	}
	return recordedBroadcast{}, false
}

// recordingPublisher captures round events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RoundSettledEvent
}

func (p *recordingPublisher) PublishRoundSettled(ctx context.Context, event models.RoundSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []models.RoundSettledEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.RoundSettledEvent(nil), p.events...)
}
