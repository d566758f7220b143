package models

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionUnder Direction = "UNDER"
	DirectionOver  Direction = "OVER"
)

func (d Direction) Valid() bool {
	return d == DirectionUnder || d == DirectionOver
}

func (d Direction) Opposite() Direction {
	if d == DirectionOver {
		return DirectionUnder
	}
	return DirectionOver
}

type RoundState string

const (
	StateIdle       RoundState = "IDLE"
	StateValidating RoundState = "VALIDATING"
	StateDebiting   RoundState = "DEBITING"
	StateSuspense   RoundState = "SUSPENSE"
	StateResolving  RoundState = "RESOLVING"
	StateSettling   RoundState = "SETTLING"
	StateFailed     RoundState = "FAILED"
)

// FairRoll is the single authoritative outcome of a round plus what a player needs to verify it
// once the server seed is revealed.
type FairRoll struct {
	Value          float64 `json:"value"`
	ServerSeedHash string  `json:"server_seed_hash"`
	ClientSeed     string  `json:"client_seed"`
	Nonce          int64   `json:"nonce"`
}

type SeedCommitment struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	NextNonce      int64  `json:"next_nonce"`
}

type SeedRotation struct {
	RevealedServerSeed string `json:"revealed_server_seed"`
	RevealedSeedHash   string `json:"revealed_server_seed_hash"`
	ClientSeed         string `json:"client_seed"`
	RoundsPlayed       int64  `json:"rounds_played"`
	NewServerSeedHash  string `json:"new_server_seed_hash"`
}

// Round is one wager. Threshold, direction and multiplier are frozen at submission; the outcome
// is written exactly once by Resolve.
type Round struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	GameID           string    `json:"game_id"`
	BetAmount        float64   `json:"bet_amount"`
	Threshold        int       `json:"threshold"`
	Direction        Direction `json:"direction"`
	WinProbability   float64   `json:"win_probability"`
	PayoutMultiplier float64   `json:"payout_multiplier"`
	Bucket           string    `json:"bucket"`

	OutcomeValue float64   `json:"outcome_value"`
	IsWin        bool      `json:"is_win"`
	Payout       float64   `json:"payout"`
	Profit       float64   `json:"profit"`
	Proof        *FairRoll `json:"proof,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

func NewRound(userID, gameID string, bet float64, threshold int, direction Direction, winProbability, multiplier float64, bucket string) *Round {
	return &Round{
		ID:               GenerateRoundID(),
		UserID:           userID,
		GameID:           gameID,
		BetAmount:        bet,
		Threshold:        threshold,
		Direction:        direction,
		WinProbability:   winProbability,
		PayoutMultiplier: multiplier,
		Bucket:           bucket,
		CreatedAt:        time.Now(),
	}
}

func (r *Round) Resolved() bool {
	return r.Proof != nil
}

func (r *Round) Resolve(roll FairRoll, isWin bool, payout float64) error {
	if r.Resolved() {
		return ErrOutcomeAlreadyResolved
	}

	r.OutcomeValue = roll.Value
	r.Proof = &roll
	r.IsWin = isWin
	if isWin {
		r.Payout = RoundMoney(payout)
	} else {
		r.Payout = 0
	}
	r.Profit = RoundMoney(r.Payout - r.BetAmount)
	r.ResolvedAt = time.Now()

	return nil
}

// DebitKey and CreditKey are the idempotency keys the wallet store uses to apply each leg once.
func (r *Round) DebitKey() string  { return r.ID + ":debit" }
func (r *Round) CreditKey() string { return r.ID + ":credit" }

func (r *Round) HistoryEntry() RoundHistoryEntry {
	entry := RoundHistoryEntry{
		RoundID:      r.ID,
		GameID:       r.GameID,
		BetAmount:    r.BetAmount,
		Threshold:    r.Threshold,
		Direction:    r.Direction,
		Multiplier:   r.PayoutMultiplier,
		OutcomeValue: r.OutcomeValue,
		IsWin:        r.IsWin,
		Payout:       r.Payout,
		Profit:       r.Profit,
		CreatedAt:    r.ResolvedAt,
	}
	if r.Proof != nil {
		entry.Nonce = r.Proof.Nonce
		entry.ServerSeedHash = r.Proof.ServerSeedHash
	}
	return entry
}

func (r *Round) Transaction() *Transaction {
	entry := r.HistoryEntry()
	return &Transaction{
		ID:          GenerateTransactionID(),
		UserID:      r.UserID,
		Kind:        TransactionKindGameRound,
		Amount:      r.Profit,
		Description: r.Description(),
		GameID:      r.GameID,
		RoundID:     r.ID,
		Round:       &entry,
		CreatedAt:   time.Now(),
	}
}

func (r *Round) Description() string {
	verb := "lost"
	amount := r.BetAmount
	if r.IsWin {
		verb = "won"
		amount = r.Payout
	}
	return fmt.Sprintf("Dice %s %s %d: %s %s",
		FormatAmount(r.OutcomeValue), r.Direction, r.Threshold, verb, FormatAmount(amount))
}

// RoundHistoryEntry is the durable record of a settled round as listed in recent history.
type RoundHistoryEntry struct {
	RoundID        string    `json:"round_id"`
	GameID         string    `json:"game_id"`
	BetAmount      float64   `json:"bet_amount"`
	Threshold      int       `json:"threshold"`
	Direction      Direction `json:"direction"`
	Multiplier     float64   `json:"multiplier"`
	OutcomeValue   float64   `json:"outcome_value"`
	IsWin          bool      `json:"is_win"`
	Payout         float64   `json:"payout"`
	Profit         float64   `json:"profit"`
	Nonce          int64     `json:"nonce"`
	ServerSeedHash string    `json:"server_seed_hash"`
	CreatedAt      time.Time `json:"created_at"`
}
