package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"miniapp-games/internal/dice"
	"miniapp-games/internal/services"
)

func TestFairnessDrawIsVerifiableAfterRotation(t *testing.T) {
	ctx := context.Background()
	fairness := services.NewFairnessService(services.NewMemoryStore(100), zap.NewNop())

	commitment, err := fairness.Commitment(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, commitment.ServerSeedHash, 64)
	assert.Zero(t, commitment.NextNonce)

	first, err := fairness.Draw(ctx, testUser)
	require.NoError(t, err)
	second, err := fairness.Draw(ctx, testUser)
	require.NoError(t, err)

	assert.Equal(t, int64(0), first.Nonce)
	assert.Equal(t, int64(1), second.Nonce)
	assert.Equal(t, commitment.ServerSeedHash, first.ServerSeedHash)

	rotation, err := fairness.Rotate(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, commitment.ServerSeedHash, rotation.RevealedSeedHash)
	assert.Equal(t, int64(2), rotation.RoundsPlayed)
	assert.NotEqual(t, commitment.ServerSeedHash, rotation.NewServerSeedHash)

	v, err := dice.Verify(rotation.RevealedServerSeed, commitment.ServerSeedHash, first.ClientSeed, first.Nonce)
	require.NoError(t, err)
	assert.Equal(t, first.Value, v)

	v, err = dice.Verify(rotation.RevealedServerSeed, commitment.ServerSeedHash, second.ClientSeed, second.Nonce)
	require.NoError(t, err)
	assert.Equal(t, second.Value, v)

	after, err := fairness.Commitment(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, rotation.NewServerSeedHash, after.ServerSeedHash)
	assert.Zero(t, after.NextNonce)
}

func TestFairnessClientSeed(t *testing.T) {
	ctx := context.Background()
	fairness := services.NewFairnessService(services.NewMemoryStore(100), zap.NewNop())

	commitment, err := fairness.SetClientSeed(ctx, testUser, "lucky")
	require.NoError(t, err)
	assert.Equal(t, "lucky", commitment.ClientSeed)

	roll, err := fairness.Draw(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, "lucky", roll.ClientSeed)

	_, err = fairness.SetClientSeed(ctx, testUser, "")
	assert.Error(t, err)
}

func TestFairnessDrawInitializesSeeds(t *testing.T) {
	fairness := services.NewFairnessService(services.NewMemoryStore(100), zap.NewNop())

	roll, err := fairness.Draw(context.Background(), "fresh-user")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, roll.Value, 0.0)
	assert.Less(t, roll.Value, 100.0)
	assert.NotEmpty(t, roll.ClientSeed)
}
