package models

import (
	"errors"
	"fmt"
)

var (
	ErrRoundInProgress        = errors.New("a round is already in progress")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrNoPendingCredit        = errors.New("no pending credit to retry")
	ErrOutcomeAlreadyResolved = errors.New("round outcome already resolved")
	ErrSessionRevoked         = errors.New("session has been revoked")
)

type InvalidBetError struct {
	Reason string
}

func (e *InvalidBetError) Error() string {
	return "invalid bet: " + e.Reason
}

type InsufficientBalanceError struct {
	Bet     float64
	Balance float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: bet %s exceeds balance %s",
		FormatAmount(e.Bet), FormatAmount(e.Balance))
}

// SettlementDebitError means the stake was never taken; the round did not happen.
type SettlementDebitError struct {
	RoundID string
	Err     error
}

func (e *SettlementDebitError) Error() string {
	return fmt.Sprintf("failed to debit stake for round %s: %v", e.RoundID, e.Err)
}

func (e *SettlementDebitError) Unwrap() error { return e.Err }

// SettlementCreditError means the stake was taken on a winning round but the payout did not land.
type SettlementCreditError struct {
	RoundID string
	Payout  float64
	Err     error
}

func (e *SettlementCreditError) Error() string {
	return fmt.Sprintf("failed to credit payout %s for round %s: %v", FormatAmount(e.Payout), e.RoundID, e.Err)
}

func (e *SettlementCreditError) Unwrap() error { return e.Err }

func (e *SettlementCreditError) UserMessage() string {
	return fmt.Sprintf("Your win of %s could not be credited. Contact support with round %s.",
		FormatCurrency(e.Payout), e.RoundID)
}

type HistoryRefreshError struct {
	Err error
}

func (e *HistoryRefreshError) Error() string {
	return fmt.Sprintf("failed to refresh round history: %v", e.Err)
}

func (e *HistoryRefreshError) Unwrap() error { return e.Err }

// UserMessage returns the text shown to a player for err. Unknown errors get a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var invalidBet *InvalidBetError
	var insufficient *InsufficientBalanceError
	var debitErr *SettlementDebitError
	var creditErr *SettlementCreditError

	switch {
	case errors.As(err, &creditErr):
		return creditErr.UserMessage()
	case errors.As(err, &debitErr):
		if errors.Is(debitErr, ErrInsufficientFunds) {
			return "Insufficient balance to place this bet."
		}
		return "Your bet could not be placed. No funds were taken."
	case errors.As(err, &invalidBet):
		return invalidBet.Error()
	case errors.As(err, &insufficient):
		return "Insufficient balance to place this bet."
	case errors.Is(err, ErrRoundInProgress):
		return "Please wait for the current round to finish."
	case errors.Is(err, ErrWalletNotFound):
		return "Wallet not found."
	}
	return "Something went wrong. Please try again."
}
