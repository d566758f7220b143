package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"miniapp-games/internal/dice"
	"miniapp-games/internal/models"
)

// OutcomeSource draws the single authoritative outcome of a round.
type OutcomeSource interface {
	Draw(ctx context.Context, userID string) (*models.FairRoll, error)
}

type FairnessService struct {
	store  SeedStore
	logger *zap.Logger
}

func NewFairnessService(store SeedStore, logger *zap.Logger) *FairnessService {
	return &FairnessService{
		store:  store,
		logger: logger.With(zap.String("component", "fairness")),
	}
}

func (f *FairnessService) Commitment(ctx context.Context, userID string) (*models.SeedCommitment, error) {
	seeds, err := f.ensureSeeds(ctx, userID)
	if err != nil {
		return nil, err
	}
	return commitmentOf(seeds), nil
}

// Draw consumes the next nonce and rolls with it. The server seed itself never leaves this service.
func (f *FairnessService) Draw(ctx context.Context, userID string) (*models.FairRoll, error) {
	seeds, err := f.store.ConsumeNonce(ctx, userID)
	if errors.Is(err, ErrSeedsNotFound) {
		if _, err = f.ensureSeeds(ctx, userID); err != nil {
			return nil, err
		}
		seeds, err = f.store.ConsumeNonce(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}

	return &models.FairRoll{
		Value:          dice.Roll(seeds.ServerSeed, seeds.ClientSeed, seeds.Nonce),
		ServerSeedHash: seeds.ServerSeedHash,
		ClientSeed:     seeds.ClientSeed,
		Nonce:          seeds.Nonce,
	}, nil
}

func (f *FairnessService) SetClientSeed(ctx context.Context, userID, clientSeed string) (*models.SeedCommitment, error) {
	if clientSeed == "" {
		return nil, fmt.Errorf("client seed must not be empty")
	}
	if _, err := f.ensureSeeds(ctx, userID); err != nil {
		return nil, err
	}

	seeds, err := f.store.SetClientSeed(ctx, userID, clientSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to set client seed: %w", err)
	}
	return commitmentOf(seeds), nil
}

// Rotate reveals the current server seed so past rounds can be verified, and commits a new one.
func (f *FairnessService) Rotate(ctx context.Context, userID string) (*models.SeedRotation, error) {
	if _, err := f.ensureSeeds(ctx, userID); err != nil {
		return nil, err
	}

	next, err := dice.GenerateSeed()
	if err != nil {
		return nil, err
	}
	nextHash := dice.HashSeed(next)

	previous, err := f.store.RotateServerSeed(ctx, userID, next, nextHash)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate server seed: %w", err)
	}

	f.logger.Info("rotated server seed",
		zap.String("user_id", userID),
		zap.Int64("rounds_played", previous.Nonce),
	)

	return &models.SeedRotation{
		RevealedServerSeed: previous.ServerSeed,
		RevealedSeedHash:   previous.ServerSeedHash,
		ClientSeed:         previous.ClientSeed,
		RoundsPlayed:       previous.Nonce,
		NewServerSeedHash:  nextHash,
	}, nil
}

func (f *FairnessService) ensureSeeds(ctx context.Context, userID string) (*SeedState, error) {
	seeds, err := f.store.GetSeeds(ctx, userID)
	if err == nil {
		return seeds, nil
	}
	if !errors.Is(err, ErrSeedsNotFound) {
		return nil, fmt.Errorf("failed to load seeds: %w", err)
	}

	serverSeed, err := dice.GenerateSeed()
	if err != nil {
		return nil, err
	}
	clientSeed, err := dice.GenerateSeed()
	if err != nil {
		return nil, err
	}

	seeds, err = f.store.InitSeeds(ctx, userID, SeedState{
		ServerSeed:     serverSeed,
		ServerSeedHash: dice.HashSeed(serverSeed),
		ClientSeed:     clientSeed[:16],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init seeds: %w", err)
	}
	return seeds, nil
}

func commitmentOf(seeds *SeedState) *models.SeedCommitment {
	return &models.SeedCommitment{
		ServerSeedHash: seeds.ServerSeedHash,
		ClientSeed:     seeds.ClientSeed,
		NextNonce:      seeds.Nonce,
	}
}
