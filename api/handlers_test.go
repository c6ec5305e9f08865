package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeclock/api"
	"github.com/warp/timeclock/clock"
	"github.com/warp/timeclock/payroll"
	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/store/sqlite"
	"github.com/warp/timeclock/track"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)

	engine := clock.NewEngine(store, nil)
	resolver := policy.NewResolver(store)
	ledger := payroll.NewLedger(store)

	handler := api.NewHandler(store, engine, resolver, ledger)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(func() {
		srv.Close()
		store.Close()
	})
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func createWorker(t *testing.T, srv *httptest.Server, username string) {
	t.Helper()
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/workers",
		map[string]string{"username": username, "name": username}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "success", env.Status)
}

// =============================================================================
// WORKERS + ENVELOPE
// =============================================================================

func TestAPI_CreateAndGetWorker(t *testing.T) {
	srv, _ := newTestServer(t)

	createWorker(t, srv, "alice")

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/workers/alice", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", env.Status)

	var worker struct {
		Username        string `json:"username"`
		CumulativeHours string `json:"cumulative_hours"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &worker))
	assert.Equal(t, "alice", worker.Username)
	assert.Equal(t, "0.00", worker.CumulativeHours)
}

func TestAPI_UnknownWorker_ErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/workers/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "worker_not_found", env.Code)
	assert.NotEmpty(t, env.Message)
}

func TestAPI_CreateWorker_MissingUsername(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/workers",
		map[string]string{"name": "No Username"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", env.Code)
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestAPI_SessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	// Start
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alice/sessions", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "active", session.Status)

	// Status shows active
	_, env = doJSON(t, http.MethodGet, srv.URL+"/api/workers/alice/status", nil, nil)
	var st struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "active", st.Status)

	// Pause closes the row
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+session.ID+"/pause", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var paused struct {
		Status  string  `json:"status"`
		EndedAt *string `json:"ended_at"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &paused))
	assert.Equal(t, "paused", paused.Status)
	assert.NotNil(t, paused.EndedAt)

	// Resume opens a new row
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+session.ID+"/resume", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resumed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resumed))
	assert.Equal(t, "active", resumed.Status)
	assert.NotEqual(t, session.ID, resumed.ID)

	// End the new row
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+resumed.ID+"/end", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Day history lists both segments
	_, env = doJSON(t, http.MethodGet, srv.URL+"/api/workers/alice/sessions", nil, nil)
	var sessions []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &sessions))
	assert.Len(t, sessions, 2)
}

func TestAPI_InvalidTransition_Conflict(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	_, env := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alice/sessions", nil, nil)
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))

	// Resume an active session
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+session.ID+"/resume", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", env.Code)
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func TestAPI_ActorCannotStartOthersSession(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alice/sessions", nil,
		map[string]string{"X-Actor": "bob"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", env.Code)
}

func TestAPI_AdminCanActOnAnyone(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alice/sessions", nil,
		map[string]string{"X-Actor": "boss", "X-Actor-Role": "admin"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_NonAdminCannotSetOverride(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	resp, env := doJSON(t, http.MethodPut, srv.URL+"/api/workers/alice/policy",
		map[string]float64{"hourly_rate": 500}, map[string]string{"X-Actor": "alice"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", env.Code)
}

// =============================================================================
// POLICY
// =============================================================================

func TestAPI_PolicyOverrideFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	// Effective starts all-global
	_, env := doJSON(t, http.MethodGet, srv.URL+"/api/workers/alice/policy", nil, nil)
	var eff struct {
		HourlyRate struct {
			Value  string `json:"value"`
			Source string `json:"source"`
		} `json:"hourly_rate"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &eff))
	assert.Equal(t, "global", eff.HourlyRate.Source)
	assert.Equal(t, "1000.00", eff.HourlyRate.Value)

	// Set an override
	resp, env := doJSON(t, http.MethodPut, srv.URL+"/api/workers/alice/policy",
		map[string]float64{"hourly_rate": 500}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &eff))
	assert.Equal(t, "override", eff.HourlyRate.Source)
	assert.Equal(t, "500.00", eff.HourlyRate.Value)

	// Clear it
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/workers/alice/policy", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, env = doJSON(t, http.MethodGet, srv.URL+"/api/workers/alice/policy", nil, nil)
	require.NoError(t, json.Unmarshal(env.Data, &eff))
	assert.Equal(t, "global", eff.HourlyRate.Source)
}

func TestAPI_SetOverride_EmptyPatch_Rejected(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	resp, env := doJSON(t, http.MethodPut, srv.URL+"/api/workers/alice/policy",
		map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", env.Code)
}

func TestAPI_UpdateGlobalPolicy(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodPut, srv.URL+"/api/policy/global",
		map[string]float64{"hourly_rate": 2000}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var global struct {
		HourlyRate string `json:"hourly_rate"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &global))
	assert.Equal(t, "2000.00", global.HourlyRate)
}

// =============================================================================
// PAYROLL
// =============================================================================

func TestAPI_Payment_NoAccrued_Rejected(t *testing.T) {
	srv, _ := newTestServer(t)
	createWorker(t, srv, "alice")

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alice/payments",
		map[string]any{"amount": 100.0}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "exceeds_remaining_balance", env.Code)
}

func TestAPI_PaymentFlow(t *testing.T) {
	srv, store := newTestServer(t)
	createWorker(t, srv, "alice")

	// Bank 2 done hours directly; wage 2000 at the default rate.
	now := time.Now().UTC()
	started := now.Add(-2 * time.Hour)
	require.NoError(t, store.SaveSession(context.Background(), track.WorkSession{
		ID:           "seg-1",
		Username:     "alice",
		CalendarDay:  track.CalendarDayOf(started),
		StartedAt:    started,
		EndedAt:      &now,
		AccruedHours: decimal.NewFromInt(2),
		Status:       track.StatusDone,
	}))

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alice/payments",
		map[string]any{"amount": 1500.0, "note": "advance"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payment struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payment))
	assert.Equal(t, "1500.00", payment.Amount)

	// Summary reflects the payment
	_, env = doJSON(t, http.MethodGet, srv.URL+"/api/workers/alice/payroll", nil, nil)
	var summary struct {
		WageAccrued       string `json:"wage_accrued_all_time"`
		AmountPaid        string `json:"amount_paid_all_time"`
		AmountOutstanding string `json:"amount_outstanding"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, "2000.00", summary.WageAccrued)
	assert.Equal(t, "1500.00", summary.AmountPaid)
	assert.Equal(t, "500.00", summary.AmountOutstanding)

	// Revise down, then remove
	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/api/payments/"+payment.ID,
		map[string]any{"amount": 1000.0}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/payments/"+payment.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = doJSON(t, http.MethodDelete, srv.URL+"/api/payments/"+payment.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", env.Code)
}

func TestAPI_AggregateSummary_UnknownPeriod(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/payroll/summary?period=fortnight", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", env.Code)
}

func TestAPI_AggregateSummary_DefaultsToAll(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/payroll/summary", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		Period string `json:"period"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, "all", summary.Period)
}
