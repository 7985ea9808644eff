package ja3

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/logging"
)

// Handler exposes the risk engine over HTTP.
type Handler struct {
	detector *Detector
}

func NewHandler(detector *Detector) *Handler {
	return &Handler{detector: detector}
}

// RegisterRoutes mounts the risk endpoints on the security group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/ja3-risk", h.EvaluateRisk)
	r.GET("/bot-stats", h.BotStats)
}

type riskRequest struct {
	AccountID string `json:"accountId"`
	TxID      string `json:"txId"`
}

// EvaluateRisk scores the caller's fingerprint against its observed history.
// The fingerprint arrives in the X-JA3-Fingerprint header; the body names
// the account and transaction the observation belongs to.
func (h *Handler) EvaluateRisk(c *gin.Context) {
	fingerprint := c.GetHeader(FingerprintHeader)
	if fingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + FingerprintHeader + " header"})
		return
	}

	var req riskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	assessment := h.detector.Evaluate(fingerprint, req.AccountID)
	logging.L(c.Request.Context()).Debug("ja3 risk evaluated",
		"ja3", fingerprint,
		"tx_id", req.TxID,
		"risk", assessment.JA3Risk)

	c.JSON(http.StatusOK, assessment)
}

// BotStats reports every tracked fingerprint with hit counts and block state.
func (h *Handler) BotStats(c *gin.Context) {
	stats := h.detector.Stats()
	blocked := 0
	totalRequests := 0
	for _, s := range stats {
		if s.Blocked {
			blocked++
		}
		totalRequests += s.Hits
	}
	c.JSON(http.StatusOK, gin.H{
		"threshold":          h.detector.Threshold(),
		"uniqueFingerprints": len(stats),
		"blockedBots":        blocked,
		"totalRequests":      totalRequests,
		"details":            stats,
	})
}
