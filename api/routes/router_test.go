package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pullstream-backend/internal/accrual"
	"github.com/angelmondragon/pullstream-backend/internal/gigs"
	"github.com/angelmondragon/pullstream-backend/internal/ledger"
	pkgAuth "github.com/angelmondragon/pullstream-backend/pkg/auth"
	"github.com/angelmondragon/pullstream-backend/pkg/clock"
	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/angelmondragon/pullstream-backend/pkg/db/dbtest"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	"github.com/angelmondragon/pullstream-backend/pkg/metrics"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox"
	"github.com/angelmondragon/pullstream-backend/pkg/redis"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	handler http.Handler
	clock   *clock.Fake
	cfg     *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "pullstream-test", ExpirationMinutes: 60},
	}
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := testConfig()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	clk := clock.NewFake(t0)
	reg := prometheus.NewRegistry()

	obx := outbox.NewService(outbox.NewRepository(conn.DB()), logg)
	transfers := ledger.NewRepository(conn.DB())
	dispatcher, err := ledger.NewDispatcher(ledger.DispatcherParams{
		Repo:       transfers,
		Transferer: ledger.NewSandbox(clk),
		Tx:         conn,
		Outbox:     obx,
		Clock:      clk,
		Metrics:    metrics.NewLedgerMetrics(reg),
		Logger:     logg,
		Config:     ledger.DispatcherConfig{Timeout: time.Second, MaxAttempts: 3},
	})
	require.NoError(t, err)

	svc, err := gigs.NewService(gigs.ServiceParams{
		Repo:       gigs.NewRepository(conn.DB()),
		Transfers:  transfers,
		Dispatcher: dispatcher,
		Locker:     gigs.NewMemoryLocker(time.Second),
		Tx:         conn,
		Outbox:     obx,
		Clock:      clk,
		Metrics:    metrics.NewGigMetrics(reg),
		Logger:     logg,
		Config:     gigs.Config{PayoutPolicy: enums.PayoutPolicyFreelancer, AmountScale: accrual.DefaultScale},
	})
	require.NoError(t, err)

	handler := NewRouter(cfg, logg, conn, (*redis.Client)(nil), svc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &testAPI{handler: handler, clock: clk, cfg: cfg}
}

func (a *testAPI) do(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		token, err := pkgAuth.MintAccessToken(a.cfg.JWT, time.Now(), caller)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	a.handler.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope), resp.Body.String())
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	api := newTestAPI(t)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/live", "", "").Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/ready", "", "").Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/metrics", "", "").Code)
}

func TestGigRoutesRequireJWT(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodGet, "/api/v1/gigs/1", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestGigLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	created := api.do(t, http.MethodPost, "/api/v1/gigs", "client-1",
		`{"freelancer":"freelancer-1","total_amount":"100","duration_seconds":3600}`)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var status gigs.GigStatus
	decodeData(t, created, &status)
	require.NotZero(t, status.ID)
	require.Equal(t, "client-1", status.Client)
	path := "/api/v1/gigs/" + strconv.FormatUint(status.ID, 10)
	require.Equal(t, path, created.Header().Get("Location"))

	api.clock.Set(t0.Add(30 * time.Minute))

	// only the freelancer may trigger a payout under the default policy
	forbidden := api.do(t, http.MethodPost, path+"/pay", "client-1", "")
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	paid := api.do(t, http.MethodPost, path+"/pay", "freelancer-1", "")
	require.Equal(t, http.StatusOK, paid.Code, paid.Body.String())
	var payout gigs.PayoutResult
	decodeData(t, paid, &payout)
	require.Equal(t, "50", payout.Amount.String())

	again := api.do(t, http.MethodPost, path+"/pay", "freelancer-1", "")
	require.Equal(t, http.StatusUnprocessableEntity, again.Code)

	require.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, path+"/pause", "freelancer-1", "").Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, path+"/pause", "client-1", "").Code)
	require.Equal(t, http.StatusUnprocessableEntity, api.do(t, http.MethodPost, path+"/pause", "client-1", "").Code)

	read := api.do(t, http.MethodGet, path, "someone-else", "")
	require.Equal(t, http.StatusOK, read.Code)
	var snapshot gigs.GigStatus
	decodeData(t, read, &snapshot)
	require.True(t, snapshot.Paused)
	require.Equal(t, "50", snapshot.AmountPaid.String())

	transfers := api.do(t, http.MethodGet, path+"/transfers", "freelancer-1", "")
	require.Equal(t, http.StatusOK, transfers.Code)

	listed := api.do(t, http.MethodGet, "/api/v1/gigs?role=freelancer", "freelancer-1", "")
	require.Equal(t, http.StatusOK, listed.Code)
	var list gigs.GigList
	decodeData(t, listed, &list)
	require.Len(t, list.Gigs, 1)
}

func TestCreateGigRejectsSelfDealing(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodPost, "/api/v1/gigs", "same",
		`{"freelancer":"SAME","total_amount":"10","duration_seconds":60}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	listed := api.do(t, http.MethodGet, "/api/v1/gigs", "same", "")
	var list gigs.GigList
	decodeData(t, listed, &list)
	require.Empty(t, list.Gigs)
}

func TestUnknownGigIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodGet, "/api/v1/gigs/999", "anyone", "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}
