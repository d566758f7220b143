package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type GamesConfig struct {
	Dice DiceConfig `yaml:"dice"`
}

// DiceConfig holds the tuning of the dice game. Durations are in milliseconds in the file.
type DiceConfig struct {
	GameID           string  `yaml:"game_id"`
	HouseEdgeFactor  float64 `yaml:"house_edge_factor"`
	MinThreshold     int     `yaml:"min_threshold"`
	MaxThreshold     int     `yaml:"max_threshold"`
	DefaultThreshold int     `yaml:"default_threshold"`
	MinBet           float64 `yaml:"min_bet"`
	MaxBet           float64 `yaml:"max_bet"`
	SuspenseMillis   int     `yaml:"suspense_ms"`
	TickMillis       int     `yaml:"tick_ms"`
}

func DefaultGamesConfig() GamesConfig {
	return GamesConfig{
		Dice: DiceConfig{
			GameID:           "dice",
			HouseEdgeFactor:  98,
			MinThreshold:     2,
			MaxThreshold:     98,
			DefaultThreshold: 50,
			MinBet:           0.01,
			MaxBet:           10000,
			SuspenseMillis:   300,
			TickMillis:       50,
		},
	}
}

// LoadGamesConfig reads the tuning file, falling back to defaults when it does not exist.
func LoadGamesConfig(path string) (GamesConfig, error) {
	cfg := DefaultGamesConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read games config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse games config: %w", err)
	}

	return cfg, nil
}

func (d DiceConfig) Validate() error {
	if d.GameID == "" {
		return fmt.Errorf("dice game_id is required")
	}
	if d.HouseEdgeFactor <= 0 || d.HouseEdgeFactor >= 100 {
		return fmt.Errorf("dice house_edge_factor must be in (0,100), got %v", d.HouseEdgeFactor)
	}
	if d.MinThreshold < 1 || d.MaxThreshold > 99 || d.MinThreshold >= d.MaxThreshold {
		return fmt.Errorf("dice threshold bounds must satisfy 1 <= min < max <= 99, got [%d,%d]", d.MinThreshold, d.MaxThreshold)
	}
	// direction toggling maps t to 100-t, so the bounds must mirror each other
	if d.MinThreshold+d.MaxThreshold != 100 {
		return fmt.Errorf("dice threshold bounds must be symmetric around 50, got [%d,%d]", d.MinThreshold, d.MaxThreshold)
	}
	if d.DefaultThreshold < d.MinThreshold || d.DefaultThreshold > d.MaxThreshold {
		return fmt.Errorf("dice default_threshold %d outside [%d,%d]", d.DefaultThreshold, d.MinThreshold, d.MaxThreshold)
	}
	if d.MinBet <= 0 || d.MaxBet < d.MinBet {
		return fmt.Errorf("dice bet limits invalid: min %v max %v", d.MinBet, d.MaxBet)
	}
	if d.SuspenseMillis < 0 || d.TickMillis <= 0 {
		return fmt.Errorf("dice suspense_ms must be >= 0 and tick_ms > 0")
	}
	return nil
}

func (d DiceConfig) SuspenseDuration() time.Duration {
	return time.Duration(d.SuspenseMillis) * time.Millisecond
}

func (d DiceConfig) TickInterval() time.Duration {
	return time.Duration(d.TickMillis) * time.Millisecond
}
