package services

import "miniapp-games/internal/models"

// Broadcaster pushes round progress to the player's open connections.
type Broadcaster interface {
	BroadcastDiceTick(userID, roundID string, value float64)
	BroadcastDiceResult(userID string, round *models.Round)
	BroadcastDiceFailed(userID, roundID, message string)
	BroadcastBalance(userID string, wallet *models.WalletSnapshot)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastDiceTick(string, string, float64)       {}
func (noopBroadcaster) BroadcastDiceResult(string, *models.Round)       {}
func (noopBroadcaster) BroadcastDiceFailed(string, string, string)      {}
func (noopBroadcaster) BroadcastBalance(string, *models.WalletSnapshot) {}
