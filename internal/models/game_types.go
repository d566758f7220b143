package models

type DiceThresholdRequest struct {
	Threshold int `json:"threshold" binding:"required"`
}

type DiceDirectionRequest struct {
	Direction Direction `json:"direction"`
	Toggle    bool      `json:"toggle"`
}

type DiceBetRequest struct {
	BetAmount float64 `json:"bet_amount"`
}

type ClientSeedRequest struct {
	ClientSeed string `json:"client_seed" binding:"required,max=64"`
}

type VerifyRequest struct {
	ServerSeed     string `json:"server_seed" binding:"required"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed" binding:"required"`
	Nonce          int64  `json:"nonce"`
}

type VerifyResponse struct {
	Valid        bool    `json:"valid"`
	OutcomeValue float64 `json:"outcome_value"`
	HashMatches  bool    `json:"hash_matches"`
}

type DiceQuote struct {
	Threshold       int       `json:"threshold"`
	Direction       Direction `json:"direction"`
	WinProbability  float64   `json:"win_probability"`
	Multiplier      float64   `json:"multiplier"`
	BetAmount       float64   `json:"bet_amount,omitempty"`
	PotentialPayout float64   `json:"potential_payout,omitempty"`
}

// DiceStateView is what the game screen renders: the current parameters, cached balance and history,
// the round in flight and the last settled round.
type DiceStateView struct {
	State         RoundState          `json:"state"`
	Threshold     int                 `json:"threshold"`
	Direction     Direction           `json:"direction"`
	Quote         DiceQuote           `json:"quote"`
	Wallet        *WalletSnapshot     `json:"wallet,omitempty"`
	History       []RoundHistoryEntry `json:"history"`
	HistoryStale  bool                `json:"history_stale"`
	CurrentRound  *Round              `json:"current_round,omitempty"`
	LastRound     *Round              `json:"last_round,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
	PendingCredit *Round              `json:"pending_credit,omitempty"`
	Commitment    *SeedCommitment     `json:"commitment,omitempty"`
}

type DiceRoundResponse struct {
	RoundID string     `json:"round_id"`
	State   RoundState `json:"state"`
	Round   *Round     `json:"round,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// RoundSettledEvent is published once per settled round.
type RoundSettledEvent struct {
	RoundID        string    `json:"round_id"`
	UserID         string    `json:"user_id"`
	GameID         string    `json:"game_id"`
	BetAmount      float64   `json:"bet_amount"`
	Threshold      int       `json:"threshold"`
	Direction      Direction `json:"direction"`
	OutcomeValue   float64   `json:"outcome_value"`
	IsWin          bool      `json:"is_win"`
	Payout         float64   `json:"payout"`
	Balance        float64   `json:"balance"`
	ServerSeedHash string    `json:"server_seed_hash"`
	Nonce          int64     `json:"nonce"`
	SettledAt      int64     `json:"settled_at"`
}
