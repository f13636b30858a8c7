package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/service"
	"go.uber.org/zap"
)

// Handlers contains the HTTP handlers driving one VeriSafe controller
type Handlers struct {
	ctrl     *service.Controller
	sessions *service.SessionService
	logger   *zap.Logger
}

// NewHandlers creates new handlers
func NewHandlers(ctrl *service.Controller, sessions *service.SessionService, logger *zap.Logger) *Handlers {
	return &Handlers{
		ctrl:     ctrl,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetView returns the screen the user last looked at
func (h *Handlers) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": h.ctrl.Snapshot().View})
}

// PutView switches screens and persists the choice
func (h *Handlers) PutView(c *gin.Context) {
	var req struct {
		View string `json:"view" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	view := core.ParseView(req.View)
	if view.String() != req.View {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown view"})
		return
	}

	if err := h.ctrl.SetView(c.Request.Context(), view); err != nil {
		h.logger.Error("Failed to persist view", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist view"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"view": view})
}

// ResetView clears the verification form and returns to the home screen
func (h *Handlers) ResetView(c *gin.Context) {
	if err := h.ctrl.ResetToHome(c.Request.Context()); err != nil {
		h.logger.Error("Failed to reset view", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist view"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"view": core.ViewHome})
}

// Connect asks the wallet for account access and hands out a session token
func (h *Handlers) Connect(c *gin.Context) {
	err := h.ctrl.Connect(c.Request.Context())
	if err != nil {
		switch {
		case core.IsUserRejection(err):
			c.JSON(http.StatusOK, gin.H{"cancelled": true})
		case errors.Is(err, core.ErrNoWallet):
			c.JSON(http.StatusNotFound, gin.H{"error": service.InstallWalletNotice})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": service.ConnectionMessage(err)})
		}
		return
	}

	state := h.ctrl.Snapshot()
	token, session, err := h.sessions.Issue(state.Account.Hex(), state.ChainID)
	if err != nil {
		h.logger.Error("Failed to issue session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	resp := gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int64(session.ExpiresAt.Sub(session.IssuedAt).Seconds()),
		"address":    session.Address,
		"chain_id":   session.ChainID,
		"contract":   state.Contract.Hex(),
		"sdk_ready":  state.SDKReady,
	}
	// The wallet is connected even when the SDK failed to start.
	if state.Error != "" {
		resp["warning"] = state.Error
	}
	c.JSON(http.StatusOK, resp)
}

// Disconnect revokes the session and forgets the wallet
func (h *Handlers) Disconnect(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	if err := h.sessions.Revoke(c.Request.Context(), session); err != nil {
		h.logger.Error("Failed to revoke session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disconnect"})
		return
	}

	h.ctrl.Disconnect(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Disconnected"})
}

// Session returns the session claims and everything a client renders
func (h *Handlers) Session(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":    session.Address,
		"expires_at": session.ExpiresAt.Unix(),
		"state":      h.ctrl.Snapshot(),
	})
}

// Verify runs one verification attempt and reports its outcome
func (h *Handlers) Verify(c *gin.Context) {
	var req struct {
		Age any `json:"age"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	session, ok := sessionFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}
	// A session only speaks for the account it was issued to.
	if s := h.ctrl.Snapshot(); s.Connected && s.Account != common.HexToAddress(session.Address) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Session belongs to a different account"})
		return
	}

	a, err := h.ctrl.Verify(c.Request.Context(), ageInput(req.Age))
	if err != nil {
		statusCode := http.StatusInternalServerError
		body := gin.H{"error": service.VerificationMessage(err)}

		switch {
		case errors.Is(err, core.ErrInvalidAge):
			statusCode = http.StatusUnprocessableEntity
			body["error"] = err.Error()
			body["cue"] = "shake"
		case errors.Is(err, core.ErrVerificationInProgress):
			statusCode = http.StatusConflict
			body["error"] = "A verification is already in progress"
		case errors.Is(err, core.ErrNotConnected):
			statusCode = http.StatusUnauthorized
			body["error"] = "Wallet is not connected"
		case core.IsUserRejection(err):
			c.JSON(http.StatusOK, gin.H{"cancelled": true, "attempt_id": a.ID})
			return
		case errors.Is(err, core.ErrDecryption):
			statusCode = http.StatusBadGateway
			body["tx_hash"] = a.TxHash.Hex()
		case errors.Is(err, core.ErrGasEstimation), errors.Is(err, core.ErrExecution):
			statusCode = http.StatusBadGateway
		case errors.Is(err, core.ErrSDKInit):
			statusCode = http.StatusServiceUnavailable
		}

		if a != nil {
			body["attempt_id"] = a.ID
			body["stage"] = a.Stage
		}
		c.JSON(statusCode, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt_id": a.ID,
		"qualified":  a.Outcome.Qualified,
		"result":     a.Outcome.Label(),
		"tx_hash":    a.TxHash.Hex(),
		"handle":     a.Handle.Hex(),
	})
}

// ageInput turns the JSON age field back into what the user typed.
func ageInput(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
