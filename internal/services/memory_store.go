package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"miniapp-games/internal/models"
)

// MemoryStore is an in-process WalletStore and SeedStore for local runs and tests.
type MemoryStore struct {
	mu              sync.Mutex
	startingBalance float64
	wallets         map[string]*models.Wallet
	adjustments     map[string]struct{}
	transactions    map[string]*models.Transaction
	roundTx         map[string]string
	seeds           map[string]*SeedState
}

func NewMemoryStore(startingBalance float64) *MemoryStore {
	return &MemoryStore{
		startingBalance: startingBalance,
		wallets:         make(map[string]*models.Wallet),
		adjustments:     make(map[string]struct{}),
		transactions:    make(map[string]*models.Transaction),
		roundTx:         make(map[string]string),
		seeds:           make(map[string]*SeedState),
	}
}

func (s *MemoryStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.wallets[userID]
	if !ok {
		wallet = models.NewWallet(userID, s.startingBalance)
		s.wallets[userID] = wallet
	}
	return copyWallet(wallet), nil
}

func (s *MemoryStore) AdjustBalance(ctx context.Context, req models.AdjustRequest) (float64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.wallets[req.UserID]
	if !ok {
		return 0, models.ErrWalletNotFound
	}

	if _, seen := s.adjustments[req.IdempotencyKey]; seen {
		return wallet.Buckets[req.Bucket], nil
	}

	next := models.RoundMoney(wallet.Buckets[req.Bucket] + req.Signed())
	if next < 0 {
		return 0, models.ErrInsufficientFunds
	}

	wallet.Buckets[req.Bucket] = next
	wallet.UpdatedAt = time.Now().Unix()
	s.adjustments[req.IdempotencyKey] = struct{}{}
	return next, nil
}

func (s *MemoryStore) RecordTransaction(ctx context.Context, tx *models.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.RoundID != "" {
		if id, ok := s.roundTx[tx.RoundID]; ok {
			return id, nil
		}
		s.roundTx[tx.RoundID] = tx.ID
	}

	stored := *tx
	s.transactions[tx.ID] = &stored
	return tx.ID, nil
}

func (s *MemoryStore) ListRecentRounds(ctx context.Context, userID, gameID string, limit int) ([]models.RoundHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rounds []models.RoundHistoryEntry
	for _, tx := range s.transactions {
		if tx.UserID == userID && tx.GameID == gameID && tx.Round != nil {
			rounds = append(rounds, *tx.Round)
		}
	}

	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].CreatedAt.After(rounds[j].CreatedAt)
	})
	if limit > 0 && len(rounds) > limit {
		rounds = rounds[:limit]
	}
	return rounds, nil
}

func (s *MemoryStore) GetSeeds(ctx context.Context, userID string) (*SeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeds, ok := s.seeds[userID]
	if !ok {
		return nil, ErrSeedsNotFound
	}
	out := *seeds
	return &out, nil
}

func (s *MemoryStore) InitSeeds(ctx context.Context, userID string, seeds SeedState) (*SeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.seeds[userID]
	if !ok {
		existing = &seeds
		s.seeds[userID] = existing
	}
	out := *existing
	return &out, nil
}

func (s *MemoryStore) ConsumeNonce(ctx context.Context, userID string) (*SeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeds, ok := s.seeds[userID]
	if !ok {
		return nil, ErrSeedsNotFound
	}
	out := *seeds
	seeds.Nonce++
	return &out, nil
}

func (s *MemoryStore) SetClientSeed(ctx context.Context, userID, clientSeed string) (*SeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeds, ok := s.seeds[userID]
	if !ok {
		return nil, ErrSeedsNotFound
	}
	seeds.ClientSeed = clientSeed
	out := *seeds
	return &out, nil
}

func (s *MemoryStore) RotateServerSeed(ctx context.Context, userID, serverSeed, serverSeedHash string) (*SeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeds, ok := s.seeds[userID]
	if !ok {
		return nil, ErrSeedsNotFound
	}
	previous := *seeds
	seeds.ServerSeed = serverSeed
	seeds.ServerSeedHash = serverSeedHash
	seeds.Nonce = 0
	return &previous, nil
}

func copyWallet(w *models.Wallet) *models.Wallet {
	out := *w
	out.Buckets = make(map[string]float64, len(w.Buckets))
	for k, v := range w.Buckets {
		out.Buckets[k] = v
	}
	return &out
}
