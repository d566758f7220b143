package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"miniapp-games/internal/config"
	"miniapp-games/internal/dice"
	"miniapp-games/internal/models"
	"miniapp-games/internal/services"
)

func newRedisService(t *testing.T) *services.RedisService {
	t.Helper()
	cfg := &config.Config{
		RedisURL:        "localhost:6379",
		RedisPass:       "",
		RedisDB:         0,
		StartingBalance: 10000,
	}

	redisService, err := services.NewRedisService(context.Background(), cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { redisService.Close() })
	return redisService
}

func TestRedisWallet(t *testing.T) {
	redisService := newRedisService(t)
	ctx := context.Background()
	userID := uuid.New().String()
	defer redisService.DeleteWallet(ctx, userID)

	wallet, err := redisService.GetWallet(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if wallet.Buckets[models.BucketBalance] != 10000 {
		t.Errorf("Expected default balance 10000, got %f", wallet.Buckets[models.BucketBalance])
	}

	debit := models.AdjustRequest{
		UserID:         userID,
		Amount:         1000,
		Direction:      models.AdjustDecrement,
		Bucket:         models.BucketBalance,
		IdempotencyKey: userID + ":r1:debit",
	}
	for i := 0; i < 2; i++ {
		balance, err := redisService.AdjustBalance(ctx, debit)
		if err != nil {
			t.Fatalf("Failed to debit: %v", err)
		}
		if balance != 9000 {
			t.Errorf("Expected balance 9000 after debit %d, got %f", i+1, balance)
		}
	}

	credit := debit
	credit.Direction = models.AdjustIncrement
	credit.Amount = 1960.55
	credit.IdempotencyKey = userID + ":r1:credit"
	balance, err := redisService.AdjustBalance(ctx, credit)
	if err != nil {
		t.Fatalf("Failed to credit: %v", err)
	}
	if balance != 10960.55 {
		t.Errorf("Expected balance 10960.55 after credit, got %f", balance)
	}

	tooMuch := debit
	tooMuch.Amount = 1000000
	tooMuch.IdempotencyKey = userID + ":r2:debit"
	if _, err := redisService.AdjustBalance(ctx, tooMuch); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Errorf("Expected insufficient funds, got %v", err)
	}

	missing := debit
	missing.UserID = uuid.New().String()
	missing.IdempotencyKey = missing.UserID + ":debit"
	if _, err := redisService.AdjustBalance(ctx, missing); !errors.Is(err, models.ErrWalletNotFound) {
		t.Errorf("Expected wallet not found, got %v", err)
	}
}

func TestRedisRounds(t *testing.T) {
	redisService := newRedisService(t)
	ctx := context.Background()
	userID := uuid.New().String()
	defer redisService.DeleteWallet(ctx, userID)

	var last *models.Round
	var lastTxID string
	for i := 0; i < 3; i++ {
		round := models.NewRound(userID, "dice", 10, 50, models.DirectionOver, 50, 1.96, models.BucketBalance)
		if err := round.Resolve(models.FairRoll{Value: float64(60 + i), Nonce: int64(i)}, true, 19.6); err != nil {
			t.Fatalf("Failed to resolve round: %v", err)
		}
		txID, err := redisService.RecordTransaction(ctx, round.Transaction())
		if err != nil {
			t.Fatalf("Failed to record transaction: %v", err)
		}
		last, lastTxID = round, txID
		time.Sleep(time.Millisecond)
	}

	first, err := redisService.RecordTransaction(ctx, last.Transaction())
	if err != nil {
		t.Fatalf("Failed to re-record transaction: %v", err)
	}

	rounds, err := redisService.ListRecentRounds(ctx, userID, "dice", 2)
	if err != nil {
		t.Fatalf("Failed to list rounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("Expected 2 rounds, got %d", len(rounds))
	}
	if rounds[0].RoundID != last.ID {
		t.Errorf("Expected newest round %s first, got %s", last.ID, rounds[0].RoundID)
	}
	if first != lastTxID {
		t.Errorf("Expected repeated round to keep transaction %s, got %s", lastTxID, first)
	}
}

func TestRedisSeeds(t *testing.T) {
	redisService := newRedisService(t)
	ctx := context.Background()
	userID := uuid.New().String()
	defer redisService.DeleteSeeds(ctx, userID)

	fairness := services.NewFairnessService(redisService, zap.NewNop())

	commitment, err := fairness.Commitment(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get commitment: %v", err)
	}

	roll, err := fairness.Draw(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to draw: %v", err)
	}
	if roll.Nonce != 0 {
		t.Errorf("Expected first nonce 0, got %d", roll.Nonce)
	}

	rotation, err := fairness.Rotate(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to rotate: %v", err)
	}
	if rotation.RoundsPlayed != 1 {
		t.Errorf("Expected 1 round played, got %d", rotation.RoundsPlayed)
	}

	value, err := dice.Verify(rotation.RevealedServerSeed, commitment.ServerSeedHash, roll.ClientSeed, roll.Nonce)
	if err != nil {
		t.Fatalf("Failed to verify revealed seed: %v", err)
	}
	if value != roll.Value {
		t.Errorf("Expected verified roll %.2f, got %.2f", roll.Value, value)
	}
}

func TestRedisSessionsAndRateLimit(t *testing.T) {
	redisService := newRedisService(t)
	ctx := context.Background()
	userID := uuid.New().String()
	sessionID := uuid.New().String()
	defer redisService.ClearRateLimit(ctx, userID, "roll")

	if err := redisService.RevokeSession(ctx, sessionID, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Failed to revoke session: %v", err)
	}
	revoked, err := redisService.IsSessionRevoked(ctx, sessionID)
	if err != nil {
		t.Fatalf("Failed to check session: %v", err)
	}
	if !revoked {
		t.Error("Expected session to be revoked")
	}

	for i := 0; i < 3; i++ {
		allowed, err := redisService.CheckRateLimit(ctx, userID, "roll", 3, time.Minute)
		if err != nil {
			t.Fatalf("Failed to check rate limit: %v", err)
		}
		if !allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}
	allowed, _ := redisService.CheckRateLimit(ctx, userID, "roll", 3, time.Minute)
	if allowed {
		t.Error("Expected fourth request to be rate limited")
	}
}

func TestRedisRecordTransactionStoresRoundOnce(t *testing.T) {
	redisService := newRedisService(t)
	ctx := context.Background()
	userID := uuid.New().String()
	defer redisService.DeleteWallet(ctx, userID)

	round := models.NewRound(userID, "dice", 10, 50, models.DirectionOver, 50, 1.96, models.BucketBalance)
	if err := round.Resolve(models.FairRoll{Value: 75, Nonce: 1}, true, 19.6); err != nil {
		t.Fatalf("Failed to resolve round: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := redisService.RecordTransaction(cancelled, round.Transaction()); err == nil {
		t.Fatal("Expected record with cancelled context to fail")
	}

	tx := round.Transaction()
	txID, err := redisService.RecordTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("Failed to record transaction: %v", err)
	}
	if txID != tx.ID {
		t.Errorf("Expected failed record to leave no round marker, got transaction %s want %s", txID, tx.ID)
	}

	again, err := redisService.RecordTransaction(ctx, round.Transaction())
	if err != nil {
		t.Fatalf("Failed to re-record transaction: %v", err)
	}
	if again != txID {
		t.Errorf("Expected repeated round to keep transaction %s, got %s", txID, again)
	}

	rounds, err := redisService.ListRecentRounds(ctx, userID, "dice", 10)
	if err != nil {
		t.Fatalf("Failed to list rounds: %v", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("Expected 1 stored round, got %d", len(rounds))
	}
	if rounds[0].RoundID != round.ID {
		t.Errorf("Expected round %s, got %s", round.ID, rounds[0].RoundID)
	}
}
