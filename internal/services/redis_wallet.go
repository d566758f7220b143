package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"miniapp-games/internal/models"
)

func (s *RedisService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	data, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		fresh, merr := json.Marshal(models.NewWallet(userID, s.startingBalance))
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal wallet: %w", merr)
		}
		if err := s.client.SetNX(ctx, key, fresh, 0).Err(); err != nil {
			return nil, fmt.Errorf("failed to create wallet: %w", err)
		}
		data, err = s.client.Get(ctx, key).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	var wallet models.Wallet
	if err := json.Unmarshal([]byte(data), &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}
	return &wallet, nil
}

// Amounts come back as strings: a Lua number reply would be truncated to an integer.
var adjustBalanceScript = redis.NewScript(`
	local walletKey = KEYS[1]
	local adjustKey = KEYS[2]
	local amount = tonumber(ARGV[1])
	local bucket = ARGV[2]
	local direction = ARGV[3]
	local ttl = tonumber(ARGV[4])
	local now = tonumber(ARGV[5])

	local data = redis.call("GET", walletKey)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)
	local current = tonumber(wallet.buckets[bucket]) or 0

	if redis.call("EXISTS", adjustKey) == 1 then
		return tostring(current)
	end

	local delta = amount
	if direction == "decrement" then
		delta = -amount
	end

	local nextValue = math.floor((current + delta) * 100 + 0.5) / 100
	if nextValue < 0 then
		return redis.error_reply("insufficient funds")
	end

	wallet.buckets[bucket] = nextValue
	wallet.updated_at = now
	redis.call("SET", walletKey, cjson.encode(wallet))
	redis.call("SET", adjustKey, tostring(nextValue), "EX", ttl)

	return tostring(nextValue)
`)

func (s *RedisService) AdjustBalance(ctx context.Context, req models.AdjustRequest) (float64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	keys := []string{
		fmt.Sprintf(KeyWallet, req.UserID),
		fmt.Sprintf(KeyWalletAdjustment, req.IdempotencyKey),
	}
	reply, err := adjustBalanceScript.Run(ctx, s.client, keys,
		req.Amount, req.Bucket, string(req.Direction),
		int64(TTLWalletAdjustment/time.Second), time.Now().Unix(),
	).Text()
	if err != nil {
		return 0, mapRedisWalletError(err)
	}

	balance, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected balance reply %q: %w", reply, err)
	}
	return balance, nil
}

func mapRedisWalletError(err error) error {
	switch {
	case strings.Contains(err.Error(), "insufficient funds"):
		return models.ErrInsufficientFunds
	case strings.Contains(err.Error(), "wallet not found"):
		return models.ErrWalletNotFound
	}
	return fmt.Errorf("failed to adjust balance: %w", err)
}

// recordTransactionScript stores a transaction and indexes it. A round is stored at most once:
// a second record for the same round returns the first transaction id. The round marker is
// written last so it never points at a transaction that was not saved.
var recordTransactionScript = redis.NewScript(`
	local hasRound = ARGV[6] == "1"
	if hasRound then
		local existing = redis.call("GET", KEYS[4])
		if existing then
			return existing
		end
	end

	local ttl = tonumber(ARGV[3])
	local keep = -(tonumber(ARGV[5]) + 1)
	redis.call("SET", KEYS[1], ARGV[2], "EX", ttl)
	redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
	redis.call("ZREMRANGEBYRANK", KEYS[2], 0, keep)

	if ARGV[7] == "1" then
		redis.call("ZADD", KEYS[3], ARGV[4], ARGV[1])
		redis.call("ZREMRANGEBYRANK", KEYS[3], 0, keep)
	end

	if hasRound then
		redis.call("SET", KEYS[4], ARGV[1], "EX", ttl)
	end
	return ARGV[1]
`)

func (s *RedisService) RecordTransaction(ctx context.Context, tx *models.Transaction) (string, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction: %w", err)
	}

	indexRound := tx.Round != nil && tx.GameID != ""
	keys := []string{
		fmt.Sprintf(KeyTransaction, tx.ID),
		fmt.Sprintf(KeyUserTransactions, tx.UserID),
		fmt.Sprintf(KeyUserRounds, tx.UserID, tx.GameID),
		fmt.Sprintf(KeyRoundTransaction, tx.RoundID),
	}

	id, err := recordTransactionScript.Run(ctx, s.client, keys,
		tx.ID,
		data,
		int64(TTLTransaction.Seconds()),
		tx.CreatedAt.UnixMilli(),
		MaxStoredTransactions,
		flag(tx.RoundID != ""),
		flag(indexRound),
	).Text()
	if err != nil {
		return "", fmt.Errorf("failed to save transaction: %w", err)
	}
	return id, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *RedisService) ListRecentRounds(ctx context.Context, userID, gameID string, limit int) ([]models.RoundHistoryEntry, error) {
	if limit <= 0 || limit > MaxStoredTransactions {
		limit = MaxStoredTransactions
	}

	roundsKey := fmt.Sprintf(KeyUserRounds, userID, gameID)
	txIDs, err := s.client.ZRevRange(ctx, roundsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get round ids: %w", err)
	}

	transactions, err := s.bulkGetTransactions(ctx, txIDs)
	if err != nil {
		return nil, err
	}

	rounds := make([]models.RoundHistoryEntry, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Round != nil {
			rounds = append(rounds, *tx.Round)
		}
	}
	return rounds, nil
}

func (s *RedisService) bulkGetTransactions(ctx context.Context, txIDs []string) ([]*models.Transaction, error) {
	if len(txIDs) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(txIDs))
	for i, id := range txIDs {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyTransaction, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	transactions := make([]*models.Transaction, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// expired or missing
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}
		transactions = append(transactions, &tx)
	}
	return transactions, nil
}

func (s *RedisService) DeleteWallet(ctx context.Context, userID string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyWallet, userID)).Err()
}
