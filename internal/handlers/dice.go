package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"miniapp-games/internal/dice"
	"miniapp-games/internal/models"
	"miniapp-games/internal/services"
)

type DiceHandler struct {
	sessions *services.SessionManager
	fairness *services.FairnessService
	logger   *zap.Logger
}

func NewDiceHandler(sessions *services.SessionManager, fairness *services.FairnessService, logger *zap.Logger) *DiceHandler {
	return &DiceHandler{
		sessions: sessions,
		fairness: fairness,
		logger:   logger.With(zap.String("component", "dice_handler")),
	}
}

func (h *DiceHandler) orchestrator(c *gin.Context) (*services.RoundOrchestrator, bool) {
	o, err := h.sessions.Get(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return o, true
}

func (h *DiceHandler) GetState(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	view := o.Snapshot()
	if commitment, err := h.fairness.Commitment(c.Request.Context(), c.GetString("user_id")); err == nil {
		view.Commitment = commitment
	} else {
		h.logger.Warn("failed to load seed commitment", zap.String("user_id", c.GetString("user_id")), zap.Error(err))
	}

	c.JSON(http.StatusOK, view)
}

func (h *DiceHandler) SetThreshold(c *gin.Context) {
	var req models.DiceThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	quote, err := o.SetThreshold(req.Threshold)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *DiceHandler) SetDirection(c *gin.Context) {
	var req models.DiceDirectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	var quote models.DiceQuote
	var err error
	if req.Toggle || req.Direction == "" {
		quote, err = o.ToggleDirection()
	} else {
		quote, err = o.SetDirection(req.Direction)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *DiceHandler) Quote(c *gin.Context) {
	var req models.DiceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	quote, err := o.Quote(req.BetAmount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// Roll submits a wager and waits for it to settle. If the client goes away first the round
// keeps running and its result is delivered over the websocket.
func (h *DiceHandler) Roll(c *gin.Context) {
	var req models.DiceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	ticket, err := o.Submit(req.BetAmount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	select {
	case <-ticket.Done():
	case <-c.Request.Context().Done():
		c.JSON(http.StatusAccepted, models.DiceRoundResponse{
			RoundID: ticket.Round.ID,
			State:   o.State(),
		})
		return
	}

	round, err := ticket.Round, ticket.Err()
	if err != nil {
		var creditErr *models.SettlementCreditError
		if errors.As(err, &creditErr) {
			c.JSON(http.StatusBadGateway, models.DiceRoundResponse{
				RoundID: round.ID,
				State:   o.State(),
				Round:   round,
				Error:   models.UserMessage(err),
			})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.DiceRoundResponse{
		RoundID: round.ID,
		State:   o.State(),
		Round:   round,
	})
}

func (h *DiceHandler) RetryCredit(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	round, err := o.RetryCredit(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.DiceRoundResponse{
		RoundID: round.ID,
		State:   o.State(),
		Round:   round,
	})
}

func (h *DiceHandler) Refresh(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	view, err := o.Refresh(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *DiceHandler) GetHistory(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}

	view := o.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"rounds": view.History,
		"stale":  view.HistoryStale,
	})
}

func (h *DiceHandler) GetFairness(c *gin.Context) {
	commitment, err := h.fairness.Commitment(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, commitment)
}

func (h *DiceHandler) SetClientSeed(c *gin.Context) {
	var req models.ClientSeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}
	if !h.idle(c) {
		return
	}

	commitment, err := h.fairness.SetClientSeed(c.Request.Context(), c.GetString("user_id"), req.ClientSeed)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, commitment)
}

func (h *DiceHandler) RotateSeed(c *gin.Context) {
	if !h.idle(c) {
		return
	}

	rotation, err := h.fairness.Rotate(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rotation)
}

// Verify recomputes a roll from a revealed server seed. It needs no session.
func (h *DiceHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	value, err := dice.Verify(req.ServerSeed, req.ServerSeedHash, req.ClientSeed, req.Nonce)
	if errors.Is(err, dice.ErrSeedMismatch) {
		c.JSON(http.StatusOK, models.VerifyResponse{
			Valid:        false,
			OutcomeValue: dice.Roll(req.ServerSeed, req.ClientSeed, req.Nonce),
			HashMatches:  false,
		})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.VerifyResponse{
		Valid:        true,
		OutcomeValue: value,
		HashMatches:  req.ServerSeedHash != "",
	})
}

// idle rejects seed changes while a round is in flight.
func (h *DiceHandler) idle(c *gin.Context) bool {
	if o, ok := h.sessions.Peek(c.GetString("user_id")); ok && o.State() != models.StateIdle {
		h.writeError(c, models.ErrRoundInProgress)
		return false
	}
	return true
}

func (h *DiceHandler) writeError(c *gin.Context, err error) {
	var invalidBet *models.InvalidBetError
	var insufficient *models.InsufficientBalanceError
	var debitErr *models.SettlementDebitError
	var creditErr *models.SettlementCreditError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &invalidBet), errors.As(err, &insufficient):
		status = http.StatusBadRequest
	case errors.As(err, &debitErr):
		status = http.StatusConflict
		if errors.Is(err, models.ErrInsufficientFunds) {
			status = http.StatusPaymentRequired
		}
	case errors.As(err, &creditErr):
		status = http.StatusBadGateway
	case errors.Is(err, models.ErrRoundInProgress), errors.Is(err, models.ErrNoPendingCredit):
		status = http.StatusConflict
	case errors.Is(err, models.ErrWalletNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrSessionClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("dice request failed",
			zap.String("user_id", c.GetString("user_id")),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	c.JSON(status, gin.H{"error": models.UserMessage(err)})
}
