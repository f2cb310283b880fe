package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/services/auth"
	"github.com/streamvault/streamvault/internal/services/custody"
	"github.com/streamvault/streamvault/internal/services/middleware"
	"github.com/streamvault/streamvault/internal/services/stream"
)

const (
	testSecret = "test-secret"
	baseTime   = int64(1_700_000_000)
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

type testServer struct {
	app      *fiber.App
	provider *auth.JWTAuthProvider
	clock    *fakeClock
	custody  *custody.Service
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	custodySvc := custody.NewService(db)
	require.NoError(t, custodySvc.AutoMigrate())

	clock := &fakeClock{now: baseTime}
	streamSvc := stream.NewService(db, custodySvc, clock)
	require.NoError(t, streamSvc.AutoMigrate())

	provider, err := auth.NewJWTAuthProvider(testSecret, "streamvault")
	require.NoError(t, err)

	authMiddleware := middleware.NewAuthMiddleware(provider, &middleware.AuthMiddlewareConfig{
		Enabled:     true,
		HeaderNames: []string{"Authorization"},
		SkipPaths:   []string{"/health"},
	})

	app := fiber.New()

	streamsHandler := NewStreamsHandler(streamSvc, nil, clock)
	accountsHandler := NewAccountsHandler(custodySvc)
	healthHandler := NewHealthHandler(db, nil)

	app.Get("/health", healthHandler.HealthCheck)

	v1 := app.Group("/v1", authMiddleware.RequireAuth())
	streams := v1.Group("/streams")
	streams.Post("/", streamsHandler.CreateStream)
	streams.Get("/:stream_id", streamsHandler.GetStream)
	streams.Post("/:stream_id/withdraw", streamsHandler.Withdraw)
	streams.Post("/:stream_id/pause", streamsHandler.Pause)
	streams.Post("/:stream_id/resume", streamsHandler.Resume)
	streams.Post("/:stream_id/cancel", streamsHandler.Cancel)
	streams.Post("/:stream_id/reload", streamsHandler.Reload)
	streams.Delete("/:stream_id", streamsHandler.CloseStream)
	streams.Get("/:stream_id/transfers", streamsHandler.GetTransfers)

	accounts := v1.Group("/accounts")
	accounts.Get("/:address", accountsHandler.GetAccount)
	accounts.Post("/:address/deposit", accountsHandler.Deposit)

	_, err = custodySvc.Fund(context.Background(), "alice", models.AssetNative, 100_000)
	require.NoError(t, err)

	return &testServer{app: app, provider: provider, clock: clock, custody: custodySvc}
}

func (ts *testServer) request(t *testing.T, method, path, caller string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		token, err := ts.provider.IssueToken(caller, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NoError(t, resp.Body.Close())
	return out
}

func createStreamReq() CreateStreamRequest {
	return CreateStreamRequest{
		Recipient:  "bob",
		Title:      "salary",
		Amount:     1000,
		StartTime:  baseTime,
		Interval:   10,
		Rate:       100,
		Duration:   100,
		CancelBy:   models.PolicyBoth,
		PauseBy:    models.PolicySenderOnly,
		ResumeBy:   models.PolicySenderOnly,
		WithdrawBy: models.PolicyRecipientOnly,
		EditBy:     models.PolicySenderOnly,
	}
}

func (ts *testServer) createStream(t *testing.T) StreamResponse {
	t.Helper()
	resp := ts.request(t, http.MethodPost, "/v1/streams/", "alice", createStreamReq())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	return decode[StreamResponse](t, resp)
}

func TestCreateStreamEndpoint(t *testing.T) {
	ts := setupServer(t)

	st := ts.createStream(t)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, "alice", st.Sender)
	assert.Equal(t, "bob", st.Recipient)
	assert.Equal(t, models.AssetNative, st.Asset)
	assert.Equal(t, int64(1000), st.RemainingBalance)
	assert.Equal(t, int64(0), st.Withdrawable)
	assert.True(t, strings.HasPrefix(st.EscrowAddress, "esc1"))
}

func TestCreateStreamRequiresAuth(t *testing.T) {
	ts := setupServer(t)

	resp := ts.request(t, http.MethodPost, "/v1/streams/", "", createStreamReq())
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/v1/streams/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	badResp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, badResp.StatusCode)
}

func TestCreateStreamValidationMapsTo400(t *testing.T) {
	ts := setupServer(t)

	req := createStreamReq()
	req.Duration = 7

	resp := ts.request(t, http.MethodPost, "/v1/streams/", "alice", req)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "validation", body["type"])
}

func TestGetStreamEndpoint(t *testing.T) {
	ts := setupServer(t)
	st := ts.createStream(t)

	ts.clock.now = baseTime + 25
	resp := ts.request(t, http.MethodGet, "/v1/streams/"+st.ID, "bob", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	got := decode[StreamResponse](t, resp)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, int64(200), got.Withdrawable)

	missing := ts.request(t, http.MethodGet, "/v1/streams/nope", "bob", nil)
	assert.Equal(t, fiber.StatusNotFound, missing.StatusCode)
}

func TestWithdrawEndpoint(t *testing.T) {
	ts := setupServer(t)
	st := ts.createStream(t)

	ts.clock.now = baseTime + 25
	resp := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/withdraw", "bob", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	got := decode[WithdrawResponse](t, resp)
	assert.Equal(t, int64(200), got.Amount)
	assert.Equal(t, int64(800), got.Stream.RemainingBalance)

	// Nothing further matured: contract violation, not success-with-zero.
	again := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/withdraw", "bob", nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, again.StatusCode)

	// Policy denies the sender.
	denied := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/withdraw", "alice", nil)
	assert.Equal(t, fiber.StatusForbidden, denied.StatusCode)
}

func TestPauseResumeCancelEndpoints(t *testing.T) {
	ts := setupServer(t)
	st := ts.createStream(t)

	ts.clock.now = baseTime + 35
	pauseResp := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/pause", "alice", nil)
	require.Equal(t, fiber.StatusOK, pauseResp.StatusCode)
	paused := decode[PauseResponse](t, pauseResp)
	assert.Equal(t, int64(300), paused.Amount)
	assert.True(t, paused.Stream.IsPaused)

	ts.clock.now = baseTime + 50
	resumeResp := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/resume", "alice", nil)
	require.Equal(t, fiber.StatusOK, resumeResp.StatusCode)
	resumed := decode[StreamResponse](t, resumeResp)
	assert.False(t, resumed.IsPaused)

	cancelResp := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/cancel", "bob", nil)
	require.Equal(t, fiber.StatusOK, cancelResp.StatusCode)
	cancelled := decode[CancelResponse](t, cancelResp)
	assert.True(t, cancelled.Stream.IsCancelled)
	assert.Equal(t, int64(700), cancelled.RecipientShare+cancelled.SenderShare)

	// Terminal: further state changes are conflicts.
	dupe := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/cancel", "bob", nil)
	assert.Equal(t, fiber.StatusConflict, dupe.StatusCode)
}

func TestReloadAndCloseEndpoints(t *testing.T) {
	ts := setupServer(t)

	req := createStreamReq()
	req.IsInfinite = true
	resp := ts.request(t, http.MethodPost, "/v1/streams/", "alice", req)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	st := decode[StreamResponse](t, resp)

	reloadResp := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/reload", "alice", ReloadRequest{Amount: 500})
	require.Equal(t, fiber.StatusOK, reloadResp.StatusCode)
	reloaded := decode[StreamResponse](t, reloadResp)
	assert.Equal(t, int64(1500), reloaded.RemainingBalance)
	assert.Equal(t, st.StopTime+50, reloaded.StopTime)

	// Close refuses while value remains.
	early := ts.request(t, http.MethodDelete, "/v1/streams/"+st.ID, "alice", nil)
	assert.Equal(t, fiber.StatusConflict, early.StatusCode)

	ts.clock.now = baseTime + 1000
	wResp := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/withdraw", "bob", nil)
	require.Equal(t, fiber.StatusOK, wResp.StatusCode)

	closeResp := ts.request(t, http.MethodDelete, "/v1/streams/"+st.ID, "alice", nil)
	assert.Equal(t, fiber.StatusNoContent, closeResp.StatusCode)

	gone := ts.request(t, http.MethodGet, "/v1/streams/"+st.ID, "alice", nil)
	assert.Equal(t, fiber.StatusNotFound, gone.StatusCode)
}

func TestTransfersEndpoint(t *testing.T) {
	ts := setupServer(t)
	st := ts.createStream(t)

	ts.clock.now = baseTime + 25
	resp := ts.request(t, http.MethodPost, "/v1/streams/"+st.ID+"/withdraw", "bob", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	histResp := ts.request(t, http.MethodGet, "/v1/streams/"+st.ID+"/transfers", "alice", nil)
	require.Equal(t, fiber.StatusOK, histResp.StatusCode)

	hist := decode[GetTransfersResponse](t, histResp)
	require.Len(t, hist.Transfers, 2)
	assert.Equal(t, "withdrawal", hist.Transfers[0].Kind)
	assert.Equal(t, "deposit", hist.Transfers[1].Kind)
}

func TestAccountEndpoints(t *testing.T) {
	ts := setupServer(t)

	resp := ts.request(t, http.MethodGet, "/v1/accounts/alice", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	account := decode[GetAccountResponse](t, resp)
	assert.Equal(t, int64(100_000), account.Balance)

	// Deposits only land in the caller's own account.
	other := ts.request(t, http.MethodPost, "/v1/accounts/bob/deposit", "alice", DepositRequest{Asset: models.AssetNative, Amount: 100})
	assert.Equal(t, fiber.StatusForbidden, other.StatusCode)

	deposit := ts.request(t, http.MethodPost, "/v1/accounts/alice/deposit", "alice", DepositRequest{Asset: models.AssetNative, Amount: 100})
	require.Equal(t, fiber.StatusOK, deposit.StatusCode)
	funded := decode[GetAccountResponse](t, deposit)
	assert.Equal(t, int64(100_100), funded.Balance)

	missing := ts.request(t, http.MethodGet, "/v1/accounts/ghost", "alice", nil)
	assert.Equal(t, fiber.StatusNotFound, missing.StatusCode)
}

func TestHealthEndpointSkipsAuth(t *testing.T) {
	ts := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
}
