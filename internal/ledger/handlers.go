package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/logging"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/validation"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	chain *Chain
}

func NewHandler(chain *Chain) *Handler {
	return &Handler{chain: chain}
}

// RegisterRoutes mounts the ledger endpoints on the security group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/log-fraud", h.LogFraud)
	r.POST("/force-block", h.ForceBlock)
	r.GET("/blockchain", h.GetChain)
	r.GET("/blockchain/verify", h.VerifyChain)
}

type logFraudRequest struct {
	TxID      string          `json:"txId"`
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
}

// LogFraud appends a confirmed fraud event to the pending buffer, sealing a
// block when the batch fills.
func (h *Handler) LogFraud(c *gin.Context) {
	var req logFraudRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validation.Validate(
		validation.Required("txId", req.TxID),
		validation.Required("accountId", req.AccountID),
		validation.NonNegativeAmount("amount", req.Amount),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pending, sealed := h.chain.AddLog(FraudLog{
		TxID:           validation.SanitizeString(req.TxID, 128),
		AccountID:      validation.SanitizeString(req.AccountID, 128),
		Amount:         req.Amount,
		ConfirmedFraud: true,
	})

	log := logging.L(c.Request.Context())
	if sealed != nil {
		log.Info("fraud block sealed",
			"block_index", sealed.Index,
			"block_hash", sealed.Hash,
			"logs_in_block", len(sealed.Logs))
	} else {
		log.Debug("fraud log queued", "tx_id", req.TxID, "pending_logs", pending)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "queued",
		"pendingLogs": pending,
		"totalBlocks": h.chain.Length(),
	})
}

// ForceBlock seals whatever is pending into a block immediately. When the
// buffer is empty nothing is sealed and the current tip is reported.
func (h *Handler) ForceBlock(c *gin.Context) {
	sealed := h.chain.ForceBlock()
	if sealed == nil {
		tip := h.chain.Tip()
		c.JSON(http.StatusOK, gin.H{
			"status":      "noop",
			"blockIndex":  tip.Index,
			"blockHash":   tip.Hash,
			"logsInBlock": len(tip.Logs),
		})
		return
	}

	logging.L(c.Request.Context()).Info("fraud block force-sealed",
		"block_index", sealed.Index,
		"logs_in_block", len(sealed.Logs))

	c.JSON(http.StatusOK, gin.H{
		"status":      "forced",
		"blockIndex":  sealed.Index,
		"blockHash":   sealed.Hash,
		"logsInBlock": len(sealed.Logs),
	})
}

// GetChain returns the full chain with summary counters.
func (h *Handler) GetChain(c *gin.Context) {
	blocks := h.chain.Blocks()
	c.JSON(http.StatusOK, gin.H{
		"chain":          blocks,
		"totalBlocks":    len(blocks),
		"pendingLogs":    h.chain.PendingCount(),
		"totalFraudLogs": h.chain.TotalLogs(),
	})
}

// VerifyChain recomputes every hash and link in the chain.
func (h *Handler) VerifyChain(c *gin.Context) {
	if err := h.chain.Verify(); err != nil {
		logging.L(c.Request.Context()).Error("ledger verification failed", "error", err)
		c.JSON(http.StatusConflict, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "totalBlocks": h.chain.Length()})
}
