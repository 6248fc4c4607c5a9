package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

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

var now = time.Date(2099, time.June, 1, 14, 0, 0, 0, time.UTC)

func testContracts() []models.OptionContract {
	june := models.NewDate(2099, time.June, 20)
	return []models.OptionContract{
		{Type: models.OptionTypeCall, Strike: decimal.NewFromInt(150), Premium: decimal.RequireFromString("2.35"), Expiry: june},
		{Type: models.OptionTypePut, Strike: decimal.NewFromInt(145), Premium: decimal.RequireFromString("1.10"), Expiry: june},
		{Type: models.OptionTypeCall, Strike: decimal.NewFromInt(155), Premium: decimal.RequireFromString("3.40"), Expiry: models.NewDate(2099, time.July, 18)},
	}
}

func testHeatmap() *models.HeatmapResult {
	return &models.HeatmapResult{
		X: []models.AxisLabel{models.NumericLabel(19), models.NumericLabel(10), models.NumericLabel(0)},
		Y: []models.AxisLabel{models.NumericLabel(140), models.NumericLabel(150), models.NumericLabel(160)},
		Z: [][]float64{{-110, -110, -110}, {-40, -80, -110}, {120, 300, 765}},
		Metrics: models.Metrics{
			ProbabilityProfit: decimal.RequireFromString("41.7"),
			MaxRisk:           decimal.NewFromInt(110),
			MaxReturn:         models.MaxReturn{Unlimited: true},
			BreakevenPrice:    decimal.RequireFromString("146.10"),
			Delta:             decimal.NewNullDecimal(decimal.RequireFromString("-0.4123")),
		},
	}
}

func newTestModel(t *testing.T, p *mockPricing) Model {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	orch := orchestrator.New(p, orchestrator.WithLogger(logger), orchestrator.WithClock(func() time.Time { return now }))
	t.Cleanup(orch.Close)

	m := New(orch, WithClock(func() time.Time { return now }), WithRequestTimeout(5*time.Second))
	return update(t, m, tea.WindowSizeMsg{Width: 200, Height: 200})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model
}

// press sends msg and feeds every resulting load back into the model.
func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	for _, loaded := range collectLoads(cmd) {
		m = update(t, m, loaded)
	}
	return m
}

// collectLoads runs cmd and returns the loadedMsg values it produces. Other
// messages such as spinner and cursor ticks are dropped.
func collectLoads(cmd tea.Cmd) []loadedMsg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(2 * time.Second):
		return nil
	}

	switch msg := msg.(type) {
	case loadedMsg:
		return []loadedMsg{msg}
	case tea.BatchMsg:
		var out []loadedMsg
		for _, c := range msg {
			out = append(out, collectLoads(c)...)
		}
		return out
	}
	return nil
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func loadedModel(t *testing.T, p *mockPricing) Model {
	t.Helper()
	p.On("FetchContracts", mock.Anything, "AAPL").Return(testContracts(), nil).Once()
	m := typeText(t, newTestModel(t, p), "aapl")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, orchestrator.ContractsReady, m.Snapshot().State)
	return m
}

func TestModel_TypingNormalizesTicker(t *testing.T) {
	m := typeText(t, newTestModel(t, new(mockPricing)), "msft")

	assert.Equal(t, "MSFT", m.input.Value())
	assert.Equal(t, "MSFT", m.Snapshot().Ticker)
	assert.Equal(t, orchestrator.Idle, m.Snapshot().State)
}

func TestModel_LoadContractsShowsGroupedChain(t *testing.T) {
	p := new(mockPricing)
	m := loadedModel(t, p)

	assert.Equal(t, panelContracts, m.focus)
	assert.Equal(t, 0, m.cursor)
	assert.False(t, m.isLoading())

	view := m.View()
	assert.Contains(t, view, "Contracts for AAPL (3")
	assert.Contains(t, view, "2099-06-20  (19 days)")
	assert.Contains(t, view, "2099-07-18  (47 days)")
	assert.Contains(t, view, "CALL $150 (premium: $2.35)")
	assert.Less(t, strings.Index(view, "2099-06-20  ("), strings.Index(view, "2099-07-18  ("))
	p.AssertExpectations(t)
}

func TestModel_EmptyChain(t *testing.T) {
	p := new(mockPricing)
	p.On("FetchContracts", mock.Anything, "ZZZZ").Return([]models.OptionContract{}, nil).Once()

	m := typeText(t, newTestModel(t, p), "zzzz")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, orchestrator.ContractsReady, m.Snapshot().State)
	assert.Equal(t, panelTicker, m.focus)
	assert.Contains(t, m.View(), "No options found for ZZZZ.")
}

func TestModel_InvalidTickerIsNotSent(t *testing.T) {
	p := new(mockPricing)
	m := newTestModel(t, p)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, orchestrator.Idle, m.Snapshot().State)
	assert.Contains(t, m.View(), "invalid ticker: ticker is empty")
	p.AssertNotCalled(t, "FetchContracts", mock.Anything, mock.Anything)
}

func TestModel_ContractsFailureShowsError(t *testing.T) {
	p := new(mockPricing)
	p.On("FetchContracts", mock.Anything, "AAPL").Return(nil, errors.New("connection refused")).Once()

	m := typeText(t, newTestModel(t, p), "AAPL")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, orchestrator.ContractsError, m.Snapshot().State)
	assert.Equal(t, panelTicker, m.focus)
	assert.Contains(t, m.errorText(), "connection refused")
	assert.Contains(t, m.View(), "connection refused")
}

func TestModel_SelectContractLoadsHeatmap(t *testing.T) {
	p := new(mockPricing)
	m := loadedModel(t, p)
	put := testContracts()[1]
	p.On("FetchHeatmap", mock.Anything, "AAPL", put, models.ModelBlackScholes).Return(testHeatmap(), nil).Once()

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	snap := m.Snapshot()
	require.Equal(t, orchestrator.HeatmapReady, snap.State)
	idx, ok := snap.Selection.Index()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	view := m.View()
	assert.Contains(t, view, "P/L heatmap: AAPL PUT $145")
	assert.Contains(t, view, "Probability of profit  41.70%")
	assert.Contains(t, view, "Max return             Unlimited")
	assert.Contains(t, view, "Breakeven price        $146.10")
	assert.Contains(t, view, "delta                  -0.4123")
	assert.Contains(t, view, "765.00")
	p.AssertExpectations(t)
}

func TestModel_PickModelReloadsHeatmap(t *testing.T) {
	p := new(mockPricing)
	m := loadedModel(t, p)
	call := testContracts()[0]
	p.On("FetchHeatmap", mock.Anything, "AAPL", call, models.ModelBlackScholes).Return(testHeatmap(), nil).Once()
	p.On("FetchHeatmap", mock.Anything, "AAPL", call, models.ModelBinomial).Return(testHeatmap(), nil).Once()

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, orchestrator.HeatmapReady, m.Snapshot().State)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'3'}})

	assert.Equal(t, orchestrator.HeatmapReady, m.Snapshot().State)
	assert.Equal(t, models.ModelBinomial, m.Snapshot().Model())
	assert.Equal(t, 2, m.modelCursor)
	assert.Contains(t, m.View(), "(Binomial)")
	p.AssertExpectations(t)
}

func TestModel_ModelsPanelNavigation(t *testing.T) {
	p := new(mockPricing)
	m := loadedModel(t, p)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, panelModels, m.focus)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 2, m.modelCursor)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 0, m.modelCursor)

	// Enter without a selected contract is rejected and the error is shown.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, orchestrator.ContractsReady, m.Snapshot().State)
	assert.Contains(t, m.errorText(), "set_model is not allowed in state contracts_ready")
}

func TestModel_SupersededLoadIsIgnored(t *testing.T) {
	p := new(mockPricing)
	m := loadedModel(t, p)
	before := m.Snapshot()

	m = update(t, m, loadedMsg{action: orchestrator.ActionLoadContracts, err: orchestrator.ErrSuperseded})

	assert.Equal(t, before.Version, m.Snapshot().Version)
	assert.Empty(t, m.errorText())
}

func TestModel_LateHeatmapAfterModelChangeIsIgnored(t *testing.T) {
	p := new(mockPricing)
	m := loadedModel(t, p)
	call := testContracts()[0]
	p.On("FetchHeatmap", mock.Anything, "AAPL", call, models.ModelBlackScholes).Return(testHeatmap(), nil).Once()

	// The load runs to completion but its message is not delivered yet.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	late, err := m.orch.LoadHeatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, orchestrator.HeatmapReady, late.State)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	require.Equal(t, models.ModelMonteCarlo, m.Snapshot().Model())

	m = update(t, m, loadedMsg{action: orchestrator.ActionLoadHeatmap, snap: late})

	snap := m.Snapshot()
	assert.Equal(t, orchestrator.Selected, snap.State)
	assert.Nil(t, snap.Heatmap)
	assert.Equal(t, models.ModelMonteCarlo, snap.Model())
	assert.Equal(t, 1, m.modelCursor)
	assert.Equal(t, m.orch.Snapshot().Version, snap.Version)
	assert.NotContains(t, m.View(), "P/L heatmap:")
}

func TestModel_OverlappingLoadsKeepSpinner(t *testing.T) {
	m := newTestModel(t, new(mockPricing))
	noop := func(context.Context) (orchestrator.Snapshot, error) { return orchestrator.Snapshot{}, nil }

	m.startLoad(orchestrator.ActionLoadHeatmap, noop)
	m.startLoad(orchestrator.ActionLoadHeatmap, noop)
	require.True(t, m.isLoading())

	m = update(t, m, loadedMsg{action: orchestrator.ActionLoadHeatmap, err: orchestrator.ErrSuperseded})
	assert.True(t, m.isLoading())
	assert.Contains(t, m.View(), "loading")

	m = update(t, m, loadedMsg{action: orchestrator.ActionLoadHeatmap, err: orchestrator.ErrSuperseded})
	assert.False(t, m.isLoading())
}

func TestModel_ResetReturnsHome(t *testing.T) {
	p := new(mockPricing)
	m := loadedModel(t, p)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})

	assert.Equal(t, orchestrator.Idle, m.Snapshot().State)
	assert.Nil(t, m.Snapshot().Catalog)
	assert.Equal(t, panelTicker, m.focus)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "Enter a ticker and press enter")
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(t, new(mockPricing))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	// q is text while the ticker input has focus.
	m = typeText(t, m, "q")
	assert.Equal(t, "Q", m.input.Value())
}

func TestModel_ViewBeforeResize(t *testing.T) {
	m := New(orchestrator.New(new(mockPricing)))
	assert.Equal(t, "Initializing...", m.View())
}
