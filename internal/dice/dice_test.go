package dice

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniapp-games/internal/models"
)

const (
	testServerSeed = "server-seed"
	testClientSeed = "client-seed"
)

func TestRollKnownVectors(t *testing.T) {
	expected := []float64{9.99, 11.63, 67.64, 43.32}
	for nonce, want := range expected {
		assert.Equal(t, want, Roll(testServerSeed, testClientSeed, int64(nonce)), "nonce %d", nonce)
	}
}

func TestRollRangeAndGranularity(t *testing.T) {
	for nonce := int64(0); nonce < 2000; nonce++ {
		v := Roll(testServerSeed, testClientSeed, nonce)
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 100.0)
		assert.Equal(t, fmt.Sprintf("%.2f", v), fmt.Sprintf("%.2f", models.RoundMoney(v)))
	}
}

func TestRollDependsOnEveryInput(t *testing.T) {
	base := Roll(testServerSeed, testClientSeed, 0)
	assert.Equal(t, base, Roll(testServerSeed, testClientSeed, 0))

	different := 0
	for nonce := int64(1); nonce <= 20; nonce++ {
		if Roll(testServerSeed, testClientSeed, nonce) != base {
			different++
		}
	}
	assert.Greater(t, different, 15)
}

func TestGenerateSeedAndHash(t *testing.T) {
	a, err := GenerateSeed()
	require.NoError(t, err)
	b, err := GenerateSeed()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "91024ec49c5bec0b689e42892526320fce08337205c91de94c7a588c20d08eeb", HashSeed(testServerSeed))
}

func TestVerify(t *testing.T) {
	hash := HashSeed(testServerSeed)

	v, err := Verify(testServerSeed, hash, testClientSeed, 2)
	require.NoError(t, err)
	assert.Equal(t, 67.64, v)

	_, err = Verify("other-seed", hash, testClientSeed, 2)
	assert.ErrorIs(t, err, ErrSeedMismatch)

	v, err = Verify(testServerSeed, "", testClientSeed, 0)
	require.NoError(t, err)
	assert.Equal(t, 9.99, v)
}

func TestWinProbabilityBounds(t *testing.T) {
	for threshold := 2; threshold <= 98; threshold++ {
		for _, dir := range []models.Direction{models.DirectionUnder, models.DirectionOver} {
			p := WinProbability(threshold, dir)
			assert.Greater(t, p, 0.0)
			assert.Less(t, p, 100.0)
		}
	}
	assert.Equal(t, 30.0, WinProbability(30, models.DirectionUnder))
	assert.Equal(t, 70.0, WinProbability(30, models.DirectionOver))
}

func TestMultiplier(t *testing.T) {
	assert.InDelta(t, 1.96, Multiplier(WinProbability(50, models.DirectionUnder), 98), 1e-12)
	assert.InDelta(t, 49.0, Multiplier(2, 98), 1e-12)
	assert.Equal(t, 0.0, Multiplier(0, 98))
	assert.Equal(t, 0.0, Multiplier(-5, 98))

	for threshold := 2; threshold <= 98; threshold++ {
		p := WinProbability(threshold, models.DirectionOver)
		assert.InDelta(t, 98/p, Multiplier(p, 98), 1e-12)
	}
}

func TestIsWin(t *testing.T) {
	assert.True(t, IsWin(49.99, 50, models.DirectionUnder))
	assert.False(t, IsWin(49.99, 50, models.DirectionOver))

	assert.False(t, IsWin(50, 50, models.DirectionUnder))
	assert.False(t, IsWin(50, 50, models.DirectionOver))
	assert.True(t, IsWin(50.01, 50, models.DirectionOver))
}

func TestPayout(t *testing.T) {
	mult := Multiplier(50, 98)
	assert.Equal(t, 19.6, models.RoundMoney(PotentialPayout(10, mult)))

	q := Quote(50, models.DirectionUnder, 98, 10)
	assert.Equal(t, 50.0, q.WinProbability)
	assert.InDelta(t, 1.96, q.Multiplier, 1e-12)
	assert.Equal(t, 19.6, q.PotentialPayout)

	odds := Quote(25, models.DirectionOver, 98, 0)
	assert.Equal(t, 75.0, odds.WinProbability)
	assert.Zero(t, odds.PotentialPayout)
}

func TestThresholdClampAndToggle(t *testing.T) {
	assert.Equal(t, 2, ClampThreshold(0, 2, 98))
	assert.Equal(t, 98, ClampThreshold(120, 2, 98))
	assert.Equal(t, 37, ClampThreshold(37, 2, 98))

	for threshold := 2; threshold <= 98; threshold++ {
		assert.Equal(t, threshold, ToggleThreshold(ToggleThreshold(threshold)))
		assert.Equal(t,
			WinProbability(threshold, models.DirectionUnder),
			WinProbability(ToggleThreshold(threshold), models.DirectionOver))
	}
}
