package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/optionscope/internal/cache"
	"github.com/irfndi/optionscope/internal/config"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPricing struct {
	mock.Mock
}

func (m *mockPricing) FetchContracts(ctx context.Context, ticker string) ([]models.OptionContract, error) {
	args := m.Called(ctx, ticker)
	contracts, _ := args.Get(0).([]models.OptionContract)
	return contracts, args.Error(1)
}

func (m *mockPricing) FetchHeatmap(ctx context.Context, ticker string, contract models.OptionContract, model models.PricingModel) (*models.HeatmapResult, error) {
	args := m.Called(ctx, ticker, contract, model)
	result, _ := args.Get(0).(*models.HeatmapResult)
	return result, args.Error(1)
}

func (m *mockPricing) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type staticTokens struct {
	err error
}

func (s staticTokens) GenerateToken(sessionID string) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "token-" + sessionID, time.Date(2025, time.June, 1, 21, 0, 0, 0, time.UTC), nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testContracts() []models.OptionContract {
	return []models.OptionContract{
		{
			Type:    models.OptionTypeCall,
			Strike:  decimal.NewFromInt(150),
			Premium: decimal.RequireFromString("2.35"),
			Expiry:  models.NewDate(2099, time.June, 20),
		},
		{
			Type:    models.OptionTypePut,
			Strike:  decimal.NewFromInt(145),
			Premium: decimal.RequireFromString("1.1"),
			Expiry:  models.NewDate(2099, time.June, 20),
		},
		{
			Type:    models.OptionTypeCall,
			Strike:  decimal.NewFromInt(155),
			Premium: decimal.RequireFromString("3.4"),
			Expiry:  models.NewDate(2099, time.July, 18),
		},
	}
}

func testHeatmap() *models.HeatmapResult {
	return &models.HeatmapResult{
		X: []models.AxisLabel{models.NumericLabel(30), models.NumericLabel(15), models.NumericLabel(1)},
		Y: []models.AxisLabel{models.NumericLabel(140), models.NumericLabel(150), models.NumericLabel(160)},
		Z: [][]float64{{-235, -235, -235}, {-120, -180, -235}, {765, 700, 765}},
		Metrics: models.Metrics{
			ProbabilityProfit: decimal.RequireFromString("0.42"),
			MaxRisk:           decimal.NewFromInt(235),
			MaxReturn:         models.MaxReturn{Unlimited: true},
			BreakevenPrice:    decimal.RequireFromString("152.35"),
			Delta:             decimal.NewNullDecimal(decimal.RequireFromString("0.55")),
		},
	}
}

type sessionFixture struct {
	router   *gin.Engine
	pricing  *mockPricing
	store    *cache.InMemorySessionStore
	sessions *services.SessionManager
	breaker  *services.CircuitBreaker
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		pricing: &mockPricing{},
		store:   cache.NewInMemorySessionStore(time.Hour, 5),
		breaker: services.NewCircuitBreaker("pricing", services.CircuitBreakerConfig{FailureThreshold: 1}, quietLogger()),
	}
	f.sessions = services.NewSessionManager(f.pricing, f.store, config.SessionConfig{IdleTimeout: time.Hour}, quietLogger())
	t.Cleanup(f.sessions.Stop)

	sessionHandler := NewSessionHandler(f.sessions, staticTokens{}, quietLogger())
	historyHandler := NewHistoryHandler(f.sessions, quietLogger())
	adminHandler := NewAdminHandler(f.sessions, f.breaker, f.store)

	f.router = gin.New()
	f.router.GET("/models", historyHandler.GetModels)
	f.router.GET("/tickers/recent", historyHandler.GetRecentTickers)
	f.router.GET("/lookups", historyHandler.GetLookups)
	f.router.GET("/admin/stats", adminHandler.GetStats)
	f.router.POST("/admin/sessions/sweep", adminHandler.SweepSessions)
	f.router.POST("/admin/breaker/reset", adminHandler.ResetBreaker)
	f.router.POST("/sessions", sessionHandler.CreateSession)
	s := f.router.Group("/sessions/:id")
	s.GET("", sessionHandler.GetSession)
	s.DELETE("", sessionHandler.DeleteSession)
	s.PUT("/ticker", sessionHandler.SetTicker)
	s.POST("/contracts", sessionHandler.LoadContracts)
	s.GET("/contracts/groups", sessionHandler.GetGroups)
	s.PUT("/selection", sessionHandler.SelectContract)
	s.PUT("/model", sessionHandler.SetModel)
	s.POST("/heatmap", sessionHandler.LoadHeatmap)
	s.POST("/reset", sessionHandler.Reset)
	s.GET("/events", sessionHandler.Events)
	return f
}

func (f *sessionFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *sessionFixture) createSession(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionID
}

func serveRecorder(router http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

// decodeJSON decodes a response body into a generic map.
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
