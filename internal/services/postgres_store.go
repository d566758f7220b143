package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"miniapp-games/internal/database"
	"miniapp-games/internal/models"
)

// SQLSTATEs raised by the wallet procedures.
const (
	sqlStateInsufficientFunds = "WA001"
	sqlStateWalletNotFound    = "WA002"
)

// PostgresStore settles through the stored procedures installed by the database migrations.
type PostgresStore struct {
	db              *database.DB
	startingBalance float64
}

func NewPostgresStore(db *database.DB, startingBalance float64) *PostgresStore {
	return &PostgresStore{db: db, startingBalance: startingBalance}
}

func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var (
		wallet                   models.Wallet
		balance, bonus, referral float64
		updatedAt                time.Time
	)

	err := s.db.QueryRow(ctx,
		`SELECT user_id, balance, bonus_balance, referral_balance, updated_at FROM get_wallet($1, $2)`,
		userID, s.startingBalance,
	).Scan(&wallet.UserID, &balance, &bonus, &referral, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", mapPgError(err))
	}

	wallet.Buckets = map[string]float64{
		models.BucketBalance:  balance,
		models.BucketBonus:    bonus,
		models.BucketReferral: referral,
	}
	wallet.UpdatedAt = updatedAt.Unix()
	return &wallet, nil
}

func (s *PostgresStore) AdjustBalance(ctx context.Context, req models.AdjustRequest) (float64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	var balance float64
	err := s.db.QueryRow(ctx,
		`SELECT adjust_balance($1, $2, $3, $4, $5)`,
		req.UserID, req.Amount, string(req.Direction), req.Bucket, req.IdempotencyKey,
	).Scan(&balance)
	if err != nil {
		return 0, mapPgError(err)
	}
	return balance, nil
}

func (s *PostgresStore) RecordTransaction(ctx context.Context, tx *models.Transaction) (string, error) {
	var round []byte
	if tx.Round != nil {
		encoded, err := json.Marshal(tx.Round)
		if err != nil {
			return "", fmt.Errorf("failed to marshal round: %w", err)
		}
		round = encoded
	}

	var id string
	err := s.db.QueryRow(ctx,
		`SELECT record_transaction($1, $2, $3, $4, $5, $6, $7, $8)`,
		tx.ID, tx.UserID, string(tx.Kind), tx.Amount, tx.Description, tx.GameID, tx.RoundID, round,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to record transaction: %w", mapPgError(err))
	}
	return id, nil
}

func (s *PostgresStore) ListRecentRounds(ctx context.Context, userID, gameID string, limit int) ([]models.RoundHistoryEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT round FROM list_recent_rounds($1, $2, $3)`, userID, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", mapPgError(err))
	}
	defer rows.Close()

	var rounds []models.RoundHistoryEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}

		var entry models.RoundHistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode round: %w", err)
		}
		rounds = append(rounds, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateInsufficientFunds:
			return models.ErrInsufficientFunds
		case sqlStateWalletNotFound:
			return models.ErrWalletNotFound
		}
	}
	return err
}
