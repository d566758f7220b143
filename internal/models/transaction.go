package models

import "time"

type TransactionKind string

const (
	TransactionKindGameRound TransactionKind = "game_round"
	TransactionKindDeposit   TransactionKind = "deposit"
	TransactionKindWithdraw  TransactionKind = "withdraw"
	TransactionKindBonus     TransactionKind = "bonus"
)

// Transaction is a ledger row. Game rounds carry their round record so recent history can be
// listed from the ledger alone.
type Transaction struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Kind        TransactionKind    `json:"kind"`
	Amount      float64            `json:"amount"`
	Description string             `json:"description"`
	GameID      string             `json:"game_id,omitempty"`
	RoundID     string             `json:"round_id,omitempty"`
	Round       *RoundHistoryEntry `json:"round,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
