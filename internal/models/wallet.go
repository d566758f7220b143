package models

import (
	"fmt"
	"math"
	"time"
)

const (
	BucketBalance  = "balance"
	BucketBonus    = "bonus_balance"
	BucketReferral = "referral_balance"
)

func ValidBucket(name string) bool {
	switch name {
	case BucketBalance, BucketBonus, BucketReferral:
		return true
	}
	return false
}

// Wallet is the stored form of a user's multi-bucket wallet.
type Wallet struct {
	UserID    string             `json:"user_id"`
	Buckets   map[string]float64 `json:"buckets"`
	UpdatedAt int64              `json:"updated_at"`
}

func NewWallet(userID string, startingBalance float64) *Wallet {
	return &Wallet{
		UserID: userID,
		Buckets: map[string]float64{
			BucketBalance:  RoundMoney(startingBalance),
			BucketBonus:    0,
			BucketReferral: 0,
		},
		UpdatedAt: time.Now().Unix(),
	}
}

func (w *Wallet) Snapshot(bucket string) WalletSnapshot {
	buckets := make(map[string]float64, len(w.Buckets))
	for k, v := range w.Buckets {
		buckets[k] = v
	}
	return WalletSnapshot{
		UserID:    w.UserID,
		Bucket:    bucket,
		Balance:   buckets[bucket],
		Buckets:   buckets,
		UpdatedAt: time.Unix(w.UpdatedAt, 0),
	}
}

// WalletSnapshot is a read of the wallet as seen by one game. Balance is the spendable amount of
// the bucket the game settles against.
type WalletSnapshot struct {
	UserID    string             `json:"user_id"`
	Bucket    string             `json:"bucket"`
	Balance   float64            `json:"balance"`
	Buckets   map[string]float64 `json:"buckets"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type AdjustDirection string

const (
	AdjustIncrement AdjustDirection = "increment"
	AdjustDecrement AdjustDirection = "decrement"
)

type AdjustRequest struct {
	UserID         string
	Amount         float64
	Direction      AdjustDirection
	Bucket         string
	IdempotencyKey string
}

func (r AdjustRequest) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount <= 0 {
		return fmt.Errorf("adjust amount must be positive, got %v", r.Amount)
	}
	if r.Direction != AdjustIncrement && r.Direction != AdjustDecrement {
		return fmt.Errorf("invalid adjust direction: %s", r.Direction)
	}
	if !ValidBucket(r.Bucket) {
		return fmt.Errorf("invalid wallet bucket: %s", r.Bucket)
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	return nil
}

// Signed returns the amount with the sign of the direction applied.
func (r AdjustRequest) Signed() float64 {
	if r.Direction == AdjustDecrement {
		return -r.Amount
	}
	return r.Amount
}
