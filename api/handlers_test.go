package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/commission-engine/api"
	"github.com/meridian/commission-engine/commission"
	"github.com/meridian/commission-engine/commission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	store  *store.Memory
	server *httptest.Server
	sent   []string // transfer destinations, in order
}

type recordingTransfers struct {
	env *testEnv
}

func (r *recordingTransfers) Transfer(ctx context.Context, destination string, amount decimal.Decimal, reference string) error {
	r.env.sent = append(r.env.sent, destination)
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := store.NewMemory()
	env := &testEnv{store: m}

	writer := commission.NewWriter(m, m, m, m, m, nil)
	payouts := commission.NewBatchBuilder(m, m, m, m, nil)
	sender := commission.NewSender(m, m, &recordingTransfers{env}, nil)

	handler := api.NewHandler(api.HandlerDeps{
		Agents:    m,
		Schedules: m,
		Policies:  m,
		Ledger:    m,
		Debts:     m,
		Batches:   m,
		Writer:    writer,
		Payouts:   payouts,
		Sender:    sender,
	})

	env.server = httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) seedHierarchy(t *testing.T) {
	t.Helper()
	for _, req := range []map[string]any{
		{"id": "mgr-1", "name": "Morgan", "level": "manager", "payout_destination": "acct-mgr"},
		{"id": "agt-1", "name": "Alex", "level": "agent", "recruiter_id": "mgr-1", "payout_destination": "acct-agt"},
	} {
		resp, _ := e.do(t, http.MethodPost, "/api/agents", req)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	for _, req := range []map[string]any{
		{"carrier": "acme-life", "product_line": "term", "policy_type": "individual",
			"level": "agent", "base_rate": "0.50", "advance_rate": "0.75"},
		{"carrier": "acme-life", "product_line": "term", "policy_type": "individual",
			"level": "manager", "base_rate": "0.625", "advance_rate": "0.75"},
	} {
		resp, _ := e.do(t, http.MethodPost, "/api/schedules", req)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
}

func (e *testEnv) issuePolicy(t *testing.T, id, premium string) {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/api/policies", map[string]any{
		"id": id, "agent_id": "agt-1", "carrier": "acme-life",
		"product_line": "term", "policy_type": "individual", "annual_premium": premium,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/policies/"+id+"/commissions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// AGENT ENDPOINTS
// =============================================================================

func TestAPI_CreateAgent_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/agents", map[string]any{
		"id": "x", "name": "X", "level": "cfo",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation failed", body["error"])
}

func TestAPI_CreateAgent_UnknownRecruiter(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/agents", map[string]any{
		"id": "x", "name": "X", "level": "agent", "recruiter_id": "ghost",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetAgent_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/agents/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// COMMISSION PROCESSING
// =============================================================================

func TestAPI_ProcessPolicy_WritesLedger(t *testing.T) {
	env := newTestEnv(t)
	env.seedHierarchy(t)
	env.issuePolicy(t, "pol-1", "1200.00")

	resp, _ := env.do(t, http.MethodGet, "/api/agents/agt-1/ledger", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries, err := env.store.EntriesByAgent(context.Background(), "agt-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(commission.MustDecimal("450.00")))

	overrides, err := env.store.EntriesByAgent(context.Background(), "mgr-1")
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.True(t, overrides[0].Amount.Equal(commission.MustDecimal("112.50")))
}

func TestAPI_ProcessPolicy_MissingSchedule(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/agents", map[string]any{
		"id": "agt-1", "name": "Alex", "level": "agent",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/policies", map[string]any{
		"id": "pol-1", "agent_id": "agt-1", "carrier": "acme-life",
		"product_line": "term", "policy_type": "individual", "annual_premium": "1200.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/policies/pol-1/commissions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreatePolicy_NonPositivePremium(t *testing.T) {
	env := newTestEnv(t)
	env.seedHierarchy(t)

	resp, _ := env.do(t, http.MethodPost, "/api/policies", map[string]any{
		"id": "pol-1", "agent_id": "agt-1", "carrier": "acme-life",
		"product_line": "term", "policy_type": "individual", "annual_premium": "-5.00",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// PAYOUT FLOW
// =============================================================================

func TestAPI_PayoutFlow_PreviewCommitSend(t *testing.T) {
	env := newTestEnv(t)
	env.seedHierarchy(t)
	env.issuePolicy(t, "pol-1", "1200.00")

	// Give the writing agent some lead debt
	resp, _ := env.do(t, http.MethodPut, "/api/debts/agt-1", map[string]any{
		"lead_debt": "500.00", "chargeback_debt": "0",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	runReq := map[string]any{
		"cutoff":   "2099-01-01T00:00:00Z",
		"pay_date": "2099-01-08",
	}

	// Preview: agt-1 gross 450, 30% withheld → 315. mgr-1 gross 112.50 → 112.50.
	resp, preview := env.do(t, http.MethodPost, "/api/payouts/preview", runReq)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, preview["batch_id"], "preview must not create a batch")
	assert.Equal(t, "427.50", preview["total"])

	// Commit
	resp, committed := env.do(t, http.MethodPost, "/api/payouts/commit", runReq)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	batchID, _ := committed["batch_id"].(string)
	require.NotEmpty(t, batchID)
	assert.Equal(t, "pending", committed["status"])
	assert.Equal(t, "427.50", committed["total"])

	// Committing again finds nothing
	resp, _ = env.do(t, http.MethodPost, "/api/payouts/commit", runReq)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Send
	resp, report := env.do(t, http.MethodPost, fmt.Sprintf("/api/payouts/%s/send", batchID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), report["sent"])
	assert.ElementsMatch(t, []string{"acct-agt", "acct-mgr"}, env.sent)

	// Second send is a conflict
	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/payouts/%s/send", batchID), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Batch is queryable with items
	resp, batch := env.do(t, http.MethodGet, "/api/payouts/"+batchID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sent", batch["status"])
	assert.Len(t, batch["items"], 2)
}

func TestAPI_Preview_NothingToPay(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/payouts/preview", map[string]any{
		"cutoff": "2099-01-01T00:00:00Z", "pay_date": "2099-01-08",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// =============================================================================
// DEBT ENDPOINTS
// =============================================================================

func TestAPI_Debt_DefaultsToZero(t *testing.T) {
	env := newTestEnv(t)
	env.seedHierarchy(t)

	resp, body := env.do(t, http.MethodGet, "/api/debts/agt-1", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0.00", body["total_debt"])
}
