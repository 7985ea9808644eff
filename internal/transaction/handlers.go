package transaction

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/ja3"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/logging"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/validation"
)

// graphLimit caps how many transactions feed the graph snapshot.
const graphLimit = 500

// Handler exposes transaction submission and graph reporting.
type Handler struct {
	saga  *Saga
	store Store
}

func NewHandler(saga *Saga, store Store) *Handler {
	return &Handler{saga: saga, store: store}
}

// RegisterRoutes mounts the transaction endpoints.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/transactions", h.Submit)
	r.GET("/transactions", h.List)
	r.GET("/transactions/:id", h.Get)
	r.GET("/graph", h.Graph)
}

// Submit runs the assessment saga for one transaction.
func (h *Handler) Submit(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	fingerprint := c.GetHeader(ja3.FingerprintHeader)
	tx, err := h.saga.Submit(c.Request.Context(), req, fingerprint)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": verrs})
			return
		}
		logging.L(c.Request.Context()).Error("transaction submission failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// Get returns one assessed transaction.
func (h *Handler) Get(c *gin.Context) {
	tx, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrTransactionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("get transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// List returns recent transactions, newest first.
func (h *Handler) List(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	txs, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

type graphNode struct {
	ID             string `json:"id"`
	SuspectedFraud bool   `json:"suspectedFraud"`
}

type graphLink struct {
	Source string          `json:"source"`
	Target string          `json:"target"`
	Amount decimal.Decimal `json:"amount"`
}

// Graph returns the money-flow graph derived from recent transactions.
// A node is marked suspect when any transaction touching it carries a
// suspected-fraud verdict.
func (h *Handler) Graph(c *gin.Context) {
	txs, err := h.store.List(c.Request.Context(), graphLimit)
	if err != nil {
		logging.L(c.Request.Context()).Error("graph snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "graph unavailable"})
		return
	}

	suspect := make(map[string]bool)
	links := make([]graphLink, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- { // oldest first for stable link order
		tx := txs[i]
		if _, ok := suspect[tx.SourceAccount]; !ok {
			suspect[tx.SourceAccount] = false
		}
		if _, ok := suspect[tx.TargetAccount]; !ok {
			suspect[tx.TargetAccount] = false
		}
		if tx.SuspectedFraud {
			suspect[tx.SourceAccount] = true
			suspect[tx.TargetAccount] = true
		}
		links = append(links, graphLink{
			Source: tx.SourceAccount,
			Target: tx.TargetAccount,
			Amount: tx.Amount,
		})
	}

	nodes := make([]graphNode, 0, len(suspect))
	for id, flagged := range suspect {
		nodes = append(nodes, graphNode{ID: id, SuspectedFraud: flagged})
	}

	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "links": links})
}
