package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/logger"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	cfg := &config.Config{
		ServerConfig:  &config.ServerConfig{ServerAddress: ":8080", GatewayAddress: "http://localhost:7070"},
		StorageConfig: &config.StorageConfig{},
		SecretConfig:  &config.SecretConfig{SecretKey: "test-key"},
		LedgerConfig:  &config.LedgerConfig{MinimumDeposit: 100, MinimumWithdrawal: 100, ReferralThreshold: 5, BonusRateBP: 500},
		QueueConfig:   &config.QueueConfig{WorkerNumber: 1, RetryNumber: 3},
	}
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	srv, err := InitServer(ctx, cfg, logger.InitLog(), wg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		wg.Wait()
	})
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, payload interface{}) *http.Response {
	var body *bytes.Buffer
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func register(t *testing.T, ts *httptest.Server, login, password string) string {
	resp := doJSON(t, ts, http.MethodPost, "/api/user/register", "", modeldto.User{Login: login, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := strings.TrimPrefix(resp.Header.Get("Authorization"), "Bearer ")
	require.NotEmpty(t, token)
	return token
}

func TestRegisterLoginBalanceFlow(t *testing.T) {
	ts := newTestServer(t)
	token := register(t, ts, "alice", "secret")

	resp := doJSON(t, ts, http.MethodPost, "/api/user/register", "", modeldto.User{Login: "alice", Password: "other"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/api/user/login", "", modeldto.User{Login: "alice", Password: "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Authorization"))

	resp = doJSON(t, ts, http.MethodPost, "/api/user/login", "", modeldto.User{Login: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/api/user/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance modeldto.Balance
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&balance))
	assert.Equal(t, int64(0), balance.CurrentAmount)

	resp = doJSON(t, ts, http.MethodGet, "/api/user/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegister_UnknownReferralCode(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, ts, http.MethodPost, "/api/user/register", "", modeldto.User{Login: "bob", Password: "secret", ReferralCode: "missing"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDepositEndpoints(t *testing.T) {
	ts := newTestServer(t)
	token := register(t, ts, "alice", "secret")

	resp := doJSON(t, ts, http.MethodGet, "/api/user/deposits", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/api/user/deposits", token, modeldto.NewDeposit{Amount: 5000, ProofRef: "slip-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created modeldto.Deposit
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.RequestID)
	assert.Equal(t, "pending", created.Status)

	resp = doJSON(t, ts, http.MethodPost, "/api/user/deposits", token, modeldto.NewDeposit{Amount: 50, ProofRef: "slip-2"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/api/user/deposits", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deposits []modeldto.Deposit
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&deposits))
	require.Len(t, deposits, 1)
	assert.Equal(t, created.RequestID, deposits[0].RequestID)
}

func TestWithdrawal_EligibilityGateOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := register(t, ts, "alice", "secret")
	payload := modeldto.NewWithdrawal{
		Amount:        500,
		PayoutDetails: modeldto.PayoutDetails{Method: "upi", VPA: "alice@bank"},
	}
	resp := doJSON(t, ts, http.MethodPost, "/api/user/withdrawals", token, payload)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminEndpoints_RequireAdminToken(t *testing.T) {
	ts := newTestServer(t)
	token := register(t, ts, "alice", "secret")

	resp := doJSON(t, ts, http.MethodGet, "/api/admin/deposits", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/api/admin/deposits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
