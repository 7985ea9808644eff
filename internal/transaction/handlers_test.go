package transaction

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/ja3"
)

func newTestRouter(saga *Saga, store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(saga, store).RegisterRoutes(r)
	return r
}

func submitTx(t *testing.T, r *gin.Engine, fingerprint string, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/transactions", &buf)
	req.Header.Set("Content-Type", "application/json")
	if fingerprint != "" {
		req.Header.Set(ja3.FingerprintHeader, fingerprint)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitEndpoint(t *testing.T) {
	store := NewMemoryStore()
	scorer := &fakeScorer{verdict: &Verdict{RiskScore: fptr(0.9), Verdict: sptr("HIGH_RISK")}}
	risk := &fakeRisk{assessment: &RiskAssessment{JA3Risk: fptr(0.2), Velocity: iptr(3), Fanout: iptr(1)}}
	saga, _, _ := testSaga(store, scorer, risk)
	r := newTestRouter(saga, store)

	w := submitTx(t, r, "fp-1", gin.H{
		"sourceAccount": "101",
		"targetAccount": "202",
		"amount":        "5000",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var tx Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.NotEmpty(t, tx.ID)
	assert.True(t, tx.SuspectedFraud)
	require.NotNil(t, tx.JA3Risk)
	assert.Equal(t, 0.2, *tx.JA3Risk)
	assert.False(t, tx.JA3Detected)
	assert.Equal(t, 1, risk.calls)
}

func TestSubmitEndpointValidation(t *testing.T) {
	store := NewMemoryStore()
	saga, _, _ := testSaga(store, &fakeScorer{}, &fakeRisk{})
	r := newTestRouter(saga, store)

	w := submitTx(t, r, "", gin.H{
		"sourceAccount": "acct-abc",
		"targetAccount": "202",
		"amount":        "10",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "sourceAccount", resp.Details[0].Field)

	// Nothing persisted.
	txs, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestGetEndpoint(t *testing.T) {
	store := NewMemoryStore()
	saga, _, _ := testSaga(store, &fakeScorer{}, &fakeRisk{})
	r := newTestRouter(saga, store)

	w := submitTx(t, r, "", gin.H{"sourceAccount": "1", "targetAccount": "2", "amount": "10"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tx Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))

	req := httptest.NewRequest(http.MethodGet, "/transactions/"+tx.ID, nil)
	got := httptest.NewRecorder()
	r.ServeHTTP(got, req)
	assert.Equal(t, http.StatusOK, got.Code)

	req = httptest.NewRequest(http.MethodGet, "/transactions/missing", nil)
	got = httptest.NewRecorder()
	r.ServeHTTP(got, req)
	assert.Equal(t, http.StatusNotFound, got.Code)
}

func TestListEndpoint(t *testing.T) {
	store := NewMemoryStore()
	saga, _, _ := testSaga(store, &fakeScorer{}, &fakeRisk{})
	r := newTestRouter(saga, store)

	for i := 0; i < 3; i++ {
		submitTx(t, r, "", gin.H{"sourceAccount": "1", "targetAccount": "2", "amount": "10"})
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions?limit=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []Transaction `json:"transactions"`
		Count        int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestGraphEndpoint(t *testing.T) {
	store := NewMemoryStore()
	scorer := &fakeScorer{verdict: &Verdict{RiskScore: fptr(0.95)}}
	saga, _, _ := testSaga(store, scorer, &fakeRisk{})
	r := newTestRouter(saga, store)

	// One suspected transaction 101->202, one clean 303->404 (scorer absent).
	submitTx(t, r, "", gin.H{"sourceAccount": "101", "targetAccount": "202", "amount": "5000"})
	scorer.verdict = &Verdict{RiskScore: fptr(0.1)}
	submitTx(t, r, "", gin.H{"sourceAccount": "303", "targetAccount": "404", "amount": "25"})

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Nodes []graphNode `json:"nodes"`
		Links []graphLink `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Nodes, 4)
	require.Len(t, resp.Links, 2)

	flagged := make(map[string]bool)
	for _, n := range resp.Nodes {
		flagged[n.ID] = n.SuspectedFraud
	}
	assert.True(t, flagged["101"])
	assert.True(t, flagged["202"])
	assert.False(t, flagged["303"])
	assert.False(t, flagged["404"])
}
