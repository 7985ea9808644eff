package ja3

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(d *Detector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(d).RegisterRoutes(r.Group("/security"))
	return r
}

func evaluate(t *testing.T, r *gin.Engine, fingerprint string, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/security/ja3-risk", &buf)
	req.Header.Set("Content-Type", "application/json")
	if fingerprint != "" {
		req.Header.Set(FingerprintHeader, fingerprint)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEvaluateRiskEndpoint(t *testing.T) {
	r := newTestRouter(NewDetector(DefaultBotThreshold))

	w := evaluate(t, r, "fp-1", gin.H{"accountId": "acct-1", "txId": "tx-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var a Assessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, "fp-1", a.JA3)
	assert.GreaterOrEqual(t, a.JA3Risk, 0.0)
	assert.LessOrEqual(t, a.JA3Risk, 1.0)
	assert.Equal(t, 1, a.Velocity)
	assert.Equal(t, 1, a.Fanout)
	assert.False(t, a.Blocked)
}

func TestEvaluateRiskMissingFingerprint(t *testing.T) {
	r := newTestRouter(NewDetector(DefaultBotThreshold))

	w := evaluate(t, r, "", gin.H{"accountId": "acct-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBotStatsEndpoint(t *testing.T) {
	d := NewDetector(2)
	r := newTestRouter(d)

	for i := 0; i < 3; i++ {
		d.IsBot("fp-bot")
	}
	d.IsBot("fp-ok")

	req := httptest.NewRequest(http.MethodGet, "/security/bot-stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Threshold          int                         `json:"threshold"`
		UniqueFingerprints int                         `json:"uniqueFingerprints"`
		BlockedBots        int                         `json:"blockedBots"`
		TotalRequests      int                         `json:"totalRequests"`
		Details            map[string]FingerprintStats `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Threshold)
	assert.Equal(t, 2, resp.UniqueFingerprints)
	assert.Equal(t, 1, resp.BlockedBots)
	assert.Equal(t, 4, resp.TotalRequests)
	assert.Equal(t, 3, resp.Details["fp-bot"].Hits)
	assert.True(t, resp.Details["fp-bot"].Blocked)
	assert.False(t, resp.Details["fp-ok"].Blocked)
}

func TestGateMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := NewDetector(2)
	r := gin.New()
	r.Use(Gate(d))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(fingerprint string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if fingerprint != "" {
			req.Header.Set(FingerprintHeader, fingerprint)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("fp-1"))
	assert.Equal(t, http.StatusOK, get("fp-1"))
	assert.Equal(t, http.StatusForbidden, get("fp-1"))
	assert.Equal(t, http.StatusForbidden, get("fp-1"))

	// No fingerprint is never gated.
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, get(""))
	}
}
