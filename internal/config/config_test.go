package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGamesConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadGamesConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultGamesConfig(), cfg)
}

func TestLoadGamesConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.yaml")
	err := os.WriteFile(path, []byte("dice:\n  house_edge_factor: 97\n  suspense_ms: 600\n"), 0o600)
	require.NoError(t, err)

	cfg, err := LoadGamesConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 97.0, cfg.Dice.HouseEdgeFactor)
	assert.Equal(t, 600*time.Millisecond, cfg.Dice.SuspenseDuration())
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Dice.MinThreshold)
	assert.Equal(t, 98, cfg.Dice.MaxThreshold)
}

func TestDiceConfigValidate(t *testing.T) {
	valid := DefaultGamesConfig().Dice
	require.NoError(t, valid.Validate())

	edge := valid
	edge.HouseEdgeFactor = 100
	assert.Error(t, edge.Validate())

	asymmetric := valid
	asymmetric.MinThreshold = 5
	assert.Error(t, asymmetric.Validate())

	bets := valid
	bets.MaxBet = 0
	assert.Error(t, bets.Validate())
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("GAMES_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("WALLET_STORE", WalletStorePostgres)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadParsesEnvironment(t *testing.T) {
	t.Setenv("GAMES_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("ENV", "test")
	t.Setenv("WALLET_STORE", WalletStoreMemory)
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("SETTLEMENT_TIMEOUT", "2s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.SettlementTimeout)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "balance", cfg.WalletBucket)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("GAMES_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("SETTLEMENT_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "SETTLEMENT_TIMEOUT")
}
