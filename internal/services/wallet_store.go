package services

import (
	"context"
	"errors"

	"miniapp-games/internal/models"
)

var ErrSeedsNotFound = errors.New("seed state not found")

// WalletStore is the external wallet the settlement bridge and history feed talk to. AdjustBalance
// must apply each idempotency key at most once; a repeat returns the bucket's current value.
type WalletStore interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	AdjustBalance(ctx context.Context, req models.AdjustRequest) (float64, error)
	RecordTransaction(ctx context.Context, tx *models.Transaction) (string, error)
	ListRecentRounds(ctx context.Context, userID, gameID string, limit int) ([]models.RoundHistoryEntry, error)
}

type SeedState struct {
	ServerSeed     string `json:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          int64  `json:"nonce"`
}

// SeedStore keeps one provably-fair seed pair per user.
type SeedStore interface {
	GetSeeds(ctx context.Context, userID string) (*SeedState, error)
	// InitSeeds stores seeds unless the user already has some, and returns what is stored.
	InitSeeds(ctx context.Context, userID string, seeds SeedState) (*SeedState, error)
	// ConsumeNonce returns the state to roll with and advances the stored nonce.
	ConsumeNonce(ctx context.Context, userID string) (*SeedState, error)
	SetClientSeed(ctx context.Context, userID, clientSeed string) (*SeedState, error)
	// RotateServerSeed installs a new server seed with nonce 0 and returns the previous state.
	RotateServerSeed(ctx context.Context, userID, serverSeed, serverSeedHash string) (*SeedState, error)
}
