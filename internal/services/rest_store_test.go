package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniapp-games/internal/models"
	"miniapp-games/internal/services"
)

func newRPCServer(t *testing.T, handle func(fn string, body map[string]any) (int, any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		status, payload := handle(r.URL.Path[len("/rest/v1/rpc/"):], body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRESTStoreGetWallet(t *testing.T) {
	server := newRPCServer(t, func(fn string, body map[string]any) (int, any) {
		assert.Equal(t, "get_wallet", fn)
		assert.Equal(t, testUser, body["p_user_id"])
		assert.Equal(t, 100.0, body["p_starting_balance"])
		return http.StatusOK, []map[string]any{{
			"user_id":          testUser,
			"balance":          75.5,
			"bonus_balance":    3,
			"referral_balance": 0,
			"updated_at":       "2026-01-02T03:04:05Z",
		}}
	})

	store := services.NewRESTStore(server.URL, "service-key", 100)
	wallet, err := store.GetWallet(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 75.5, wallet.Buckets[models.BucketBalance])
	assert.Equal(t, 3.0, wallet.Buckets[models.BucketBonus])
}

func TestRESTStoreAdjustBalance(t *testing.T) {
	server := newRPCServer(t, func(fn string, body map[string]any) (int, any) {
		assert.Equal(t, "adjust_balance", fn)
		assert.Equal(t, "r1:debit", body["p_idempotency_key"])
		assert.Equal(t, "decrement", body["p_direction"])
		return http.StatusOK, 90.0
	})

	store := services.NewRESTStore(server.URL, "service-key", 100)
	balance, err := store.AdjustBalance(context.Background(), adjust("r1:debit", models.AdjustDecrement, 10))
	require.NoError(t, err)
	assert.Equal(t, 90.0, balance)
}

func TestRESTStoreMapsProcedureErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{"insufficient funds", "WA001", models.ErrInsufficientFunds},
		{"wallet not found", "WA002", models.ErrWalletNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRPCServer(t, func(fn string, body map[string]any) (int, any) {
				return http.StatusBadRequest, map[string]any{"code": tt.code, "message": tt.name}
			})

			store := services.NewRESTStore(server.URL, "service-key", 100)
			_, err := store.AdjustBalance(context.Background(), adjust("r1:debit", models.AdjustDecrement, 10))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	server := newRPCServer(t, func(fn string, body map[string]any) (int, any) {
		return http.StatusInternalServerError, map[string]any{"code": "XX000", "message": "boom"}
	})
	store := services.NewRESTStore(server.URL, "service-key", 100)
	_, err := store.AdjustBalance(context.Background(), adjust("r1:debit", models.AdjustDecrement, 10))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "XX000")
}

func TestRESTStoreListRecentRounds(t *testing.T) {
	server := newRPCServer(t, func(fn string, body map[string]any) (int, any) {
		assert.Equal(t, "list_recent_rounds", fn)
		assert.Equal(t, 5.0, body["p_limit"])
		return http.StatusOK, []map[string]any{
			{"round": map[string]any{"round_id": "r2", "outcome_value": 80.5}},
			{"round": map[string]any{"round_id": "r1", "outcome_value": 10.25}},
		}
	})

	store := services.NewRESTStore(server.URL, "service-key", 100)
	rounds, err := store.ListRecentRounds(context.Background(), testUser, "dice", 5)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, "r2", rounds[0].RoundID)
	assert.Equal(t, 10.25, rounds[1].OutcomeValue)
}
