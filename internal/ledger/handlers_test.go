package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(chain *Chain) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(chain).RegisterRoutes(r.Group("/security"))
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogFraudQueues(t *testing.T) {
	r := newTestRouter(New(DefaultBatchSize))

	w := postJSON(t, r, "/security/log-fraud", gin.H{
		"txId":      "tx-1",
		"accountId": "acct-1",
		"amount":    "250.00",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status      string `json:"status"`
		PendingLogs int    `json:"pendingLogs"`
		TotalBlocks int    `json:"totalBlocks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 1, resp.PendingLogs)
	assert.Equal(t, 1, resp.TotalBlocks)
}

func TestLogFraudValidation(t *testing.T) {
	r := newTestRouter(New(DefaultBatchSize))

	w := postJSON(t, r, "/security/log-fraud", gin.H{"accountId": "acct-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, r, "/security/log-fraud", gin.H{
		"txId":      "tx-1",
		"accountId": "acct-1",
		"amount":    "-5",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogFraudSealsOnBatch(t *testing.T) {
	chain := New(DefaultBatchSize)
	r := newTestRouter(chain)

	for i := 0; i < DefaultBatchSize; i++ {
		w := postJSON(t, r, "/security/log-fraud", gin.H{
			"txId":      fmt.Sprintf("tx-%d", i),
			"accountId": "acct-1",
			"amount":    "10",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2, chain.Length())
	assert.Equal(t, 0, chain.PendingCount())
}

func TestForceBlockEndpoint(t *testing.T) {
	chain := New(DefaultBatchSize)
	r := newTestRouter(chain)

	postJSON(t, r, "/security/log-fraud", gin.H{
		"txId": "tx-1", "accountId": "acct-1", "amount": "10",
	})

	w := postJSON(t, r, "/security/force-block", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status      string `json:"status"`
		BlockIndex  int    `json:"blockIndex"`
		LogsInBlock int    `json:"logsInBlock"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "forced", resp.Status)
	assert.Equal(t, 1, resp.BlockIndex)
	assert.Equal(t, 1, resp.LogsInBlock)

	// Nothing pending now, force is a no-op reporting the tip.
	w = postJSON(t, r, "/security/force-block", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "noop", resp.Status)
	assert.Equal(t, 1, resp.BlockIndex)
}

func TestGetChain(t *testing.T) {
	chain := New(DefaultBatchSize)
	r := newTestRouter(chain)

	for i := 0; i < 12; i++ {
		postJSON(t, r, "/security/log-fraud", gin.H{
			"txId": fmt.Sprintf("tx-%d", i), "accountId": "acct-1", "amount": "10",
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/security/blockchain", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Chain          []Block `json:"chain"`
		TotalBlocks    int     `json:"totalBlocks"`
		PendingLogs    int     `json:"pendingLogs"`
		TotalFraudLogs int     `json:"totalFraudLogs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalBlocks)
	assert.Len(t, resp.Chain, 2)
	assert.Equal(t, 2, resp.PendingLogs)
	assert.Equal(t, 10, resp.TotalFraudLogs)
}

func TestVerifyEndpoint(t *testing.T) {
	chain := New(DefaultBatchSize)
	r := newTestRouter(chain)

	req := httptest.NewRequest(http.MethodGet, "/security/blockchain/verify", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
}
