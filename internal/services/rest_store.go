package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"miniapp-games/internal/models"
)

const rpcPath = "/rest/v1/rpc/"

// RESTStore calls the wallet procedures through the hosted backend's RPC endpoint.
type RESTStore struct {
	client          *resty.Client
	startingBalance float64
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %s: %s", e.Code, e.Message)
}

type walletRow struct {
	UserID          string    `json:"user_id"`
	Balance         float64   `json:"balance"`
	BonusBalance    float64   `json:"bonus_balance"`
	ReferralBalance float64   `json:"referral_balance"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type roundRow struct {
	Round models.RoundHistoryEntry `json:"round"`
}

func NewRESTStore(baseURL, serviceKey string, startingBalance float64) *RESTStore {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("apikey", serviceKey).
		SetAuthToken(serviceKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &RESTStore{client: client, startingBalance: startingBalance}
}

func (s *RESTStore) call(ctx context.Context, fn string, body map[string]any, result any) error {
	var apiErr rpcError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&apiErr).
		Post(rpcPath + fn)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", fn, err)
	}

	if resp.IsError() {
		switch apiErr.Code {
		case sqlStateInsufficientFunds:
			return models.ErrInsufficientFunds
		case sqlStateWalletNotFound:
			return models.ErrWalletNotFound
		case "":
			return fmt.Errorf("rpc %s failed with status %d", fn, resp.StatusCode())
		}
		return fmt.Errorf("rpc %s failed: %w", fn, &apiErr)
	}
	return nil
}

func (s *RESTStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var rows []walletRow
	err := s.call(ctx, "get_wallet", map[string]any{
		"p_user_id":          userID,
		"p_starting_balance": s.startingBalance,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrWalletNotFound
	}

	row := rows[0]
	return &models.Wallet{
		UserID: row.UserID,
		Buckets: map[string]float64{
			models.BucketBalance:  row.Balance,
			models.BucketBonus:    row.BonusBalance,
			models.BucketReferral: row.ReferralBalance,
		},
		UpdatedAt: row.UpdatedAt.Unix(),
	}, nil
}

func (s *RESTStore) AdjustBalance(ctx context.Context, req models.AdjustRequest) (float64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	var balance float64
	err := s.call(ctx, "adjust_balance", map[string]any{
		"p_user_id":         req.UserID,
		"p_amount":          req.Amount,
		"p_direction":       string(req.Direction),
		"p_bucket":          req.Bucket,
		"p_idempotency_key": req.IdempotencyKey,
	}, &balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *RESTStore) RecordTransaction(ctx context.Context, tx *models.Transaction) (string, error) {
	var id string
	err := s.call(ctx, "record_transaction", map[string]any{
		"p_id":          tx.ID,
		"p_user_id":     tx.UserID,
		"p_kind":        string(tx.Kind),
		"p_amount":      tx.Amount,
		"p_description": tx.Description,
		"p_game_id":     tx.GameID,
		"p_round_id":    tx.RoundID,
		"p_round":       tx.Round,
	}, &id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *RESTStore) ListRecentRounds(ctx context.Context, userID, gameID string, limit int) ([]models.RoundHistoryEntry, error) {
	var rows []roundRow
	err := s.call(ctx, "list_recent_rounds", map[string]any{
		"p_user_id": userID,
		"p_game_id": gameID,
		"p_limit":   limit,
	}, &rows)
	if err != nil {
		return nil, err
	}

	rounds := make([]models.RoundHistoryEntry, 0, len(rows))
	for _, row := range rows {
		rounds = append(rounds, row.Round)
	}
	return rounds, nil
}
