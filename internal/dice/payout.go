package dice

import "miniapp-games/internal/models"

// WinProbability is the chance of winning in percent.
func WinProbability(threshold int, direction models.Direction) float64 {
	if direction == models.DirectionOver {
		return float64(100 - threshold)
	}
	return float64(threshold)
}

func Multiplier(winProbability, houseEdgeFactor float64) float64 {
	if winProbability <= 0 {
		return 0
	}
	return houseEdgeFactor / winProbability
}

func PotentialPayout(bet, multiplier float64) float64 {
	return bet * multiplier
}

func IsWin(outcome float64, threshold int, direction models.Direction) bool {
	if direction == models.DirectionOver {
		return outcome > float64(threshold)
	}
	return outcome < float64(threshold)
}

func ClampThreshold(threshold, lo, hi int) int {
	if threshold < lo {
		return lo
	}
	if threshold > hi {
		return hi
	}
	return threshold
}

// ToggleThreshold mirrors the threshold so the win probability is kept when the direction flips.
func ToggleThreshold(threshold int) int {
	return 100 - threshold
}

// Quote prices a wager at the given parameters. bet may be zero for odds only.
func Quote(threshold int, direction models.Direction, houseEdgeFactor, bet float64) models.DiceQuote {
	prob := WinProbability(threshold, direction)
	mult := Multiplier(prob, houseEdgeFactor)

	quote := models.DiceQuote{
		Threshold:      threshold,
		Direction:      direction,
		WinProbability: prob,
		Multiplier:     mult,
	}
	if bet > 0 {
		quote.BetAmount = bet
		quote.PotentialPayout = models.RoundMoney(PotentialPayout(bet, mult))
	}
	return quote
}
