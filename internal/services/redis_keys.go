package services

import "time"

const (
	KeyRevokedSession   = "session:revoked:%s"
	KeyWallet           = "wallet:%s"
	KeyWalletAdjustment = "wallet:adjust:%s"
	KeyTransaction      = "transaction:%s"
	KeyRoundTransaction = "round:%s:transaction"
	KeyUserTransactions = "user:%s:transactions"
	KeyUserRounds       = "user:%s:rounds:%s"
	KeySeeds            = "fair:%s"
	KeyRateLimit        = "ratelimit:%s:%s"

	TTLWalletAdjustment = 7 * 24 * time.Hour
	TTLTransaction      = 30 * 24 * time.Hour // 30 days

	MaxStoredTransactions = 100

	DefaultRateLimitBets = 30 // per minute
)
