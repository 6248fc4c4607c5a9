package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/irfndi/optionscope/internal/cache"
	"github.com/irfndi/optionscope/internal/config"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/shopspring/decimal"
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

type fakeJournal struct {
	mu      sync.Mutex
	lookups []models.HeatmapLookup
	err     error
}

func (f *fakeJournal) RecordLookup(_ context.Context, lookup models.HeatmapLookup) (*models.HeatmapLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	lookup.ID = int64(len(f.lookups) + 1)
	f.lookups = append(f.lookups, lookup)
	return &lookup, nil
}

func (f *fakeJournal) RecentLookups(_ context.Context, ticker string, limit int) ([]models.HeatmapLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.HeatmapLookup
	for i := len(f.lookups) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if ticker == "" || f.lookups[i].Ticker == ticker {
			out = append(out, f.lookups[i])
		}
	}
	return out, nil
}

var _ interfaces.LookupJournal = (*fakeJournal)(nil)

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
			Premium: decimal.RequireFromString("1.10"),
			Expiry:  models.NewDate(2099, time.June, 20),
		},
	}
}

func testHeatmap() *models.HeatmapResult {
	return &models.HeatmapResult{
		X: []models.AxisLabel{models.NumericLabel(30), models.NumericLabel(15)},
		Y: []models.AxisLabel{models.NumericLabel(140), models.NumericLabel(160)},
		Z: [][]float64{{-235, -235}, {765, 700}},
		Metrics: models.Metrics{
			ProbabilityProfit: decimal.RequireFromString("0.42"),
			MaxRisk:           decimal.NewFromInt(235),
			MaxReturn:         models.MaxReturn{Unlimited: true},
			BreakevenPrice:    decimal.RequireFromString("152.35"),
		},
	}
}

type managerFixture struct {
	manager *SessionManager
	pricing *mockPricing
	store   *cache.InMemorySessionStore
	journal *fakeJournal
	now     *time.Time
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	f := &managerFixture{
		pricing: &mockPricing{},
		store:   cache.NewInMemorySessionStore(0, 5),
		journal: &fakeJournal{},
		now:     &now,
	}
	ids := 0
	f.manager = NewSessionManager(f.pricing, f.store,
		config.SessionConfig{IdleTimeout: 30 * time.Minute, SweepInterval: time.Minute},
		quietLogger(),
		WithSessionClock(func() time.Time { return *f.now }),
		WithSessionIDGenerator(func() string { ids++; return fmt.Sprintf("session-%d", ids) }),
		WithLookupJournal(f.journal),
	)
	t.Cleanup(f.manager.Stop)
	return f
}

func (f *managerFixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func TestSessionManager_CreateAndGet(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.ID)
	assert.Equal(t, orchestrator.Idle, session.Orchestrator.Snapshot().State)
	assert.Equal(t, 1, f.manager.Count())

	got, err := f.manager.Get("session-1")
	require.NoError(t, err)
	assert.Same(t, session, got)

	summary, err := f.store.GetSummary(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "idle", summary.State)
	assert.Equal(t, models.ModelBlackScholes, summary.Model)

	_, err = f.manager.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_DefaultIDsAreUUIDs(t *testing.T) {
	manager := NewSessionManager(&mockPricing{}, cache.NewInMemorySessionStore(0, 5), config.SessionConfig{}, quietLogger())
	defer manager.Stop()

	first, err := manager.Create(context.Background())
	require.NoError(t, err)
	second, err := manager.Create(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.ID, 36)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSessionManager_PersistsProgress(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	session, err := f.manager.Create(ctx)
	require.NoError(t, err)

	f.pricing.On("FetchContracts", mock.Anything, "AAPL").Return(testContracts(), nil)
	f.pricing.On("FetchHeatmap", mock.Anything, "AAPL", testContracts()[1], models.ModelMonteCarlo).
		Return(testHeatmap(), nil)

	o := session.Orchestrator
	o.SetTicker("aapl")
	_, err = o.LoadContracts(ctx)
	require.NoError(t, err)
	_, err = o.SelectContract(1)
	require.NoError(t, err)
	_, err = o.SetModel(models.ModelMonteCarlo)
	require.NoError(t, err)
	_, err = o.LoadHeatmap(ctx)
	require.NoError(t, err)

	recent, err := f.manager.RecentTickers(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, recent)

	summary, err := f.store.GetSummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "heatmap_ready", summary.State)
	assert.Equal(t, "AAPL", summary.LoadedTicker)
	require.NotNil(t, summary.ContractIndex)
	assert.Equal(t, 1, *summary.ContractIndex)
	assert.Equal(t, models.ModelMonteCarlo, summary.Model)
	assert.Equal(t, 1, summary.Lookups)

	lookups, err := f.manager.RecentLookups(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, lookups, 1)
	assert.Equal(t, session.ID, lookups[0].SessionID)
	assert.Equal(t, testContracts()[1], lookups[0].Contract)
	assert.Equal(t, models.ModelMonteCarlo, lookups[0].Model)
	assert.True(t, lookups[0].MaxReturn.Unlimited)
	f.pricing.AssertExpectations(t)
}

func TestSessionManager_OutOfOrderObserverKeepsNewestSummary(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	session, err := f.manager.Create(ctx)
	require.NoError(t, err)
	f.pricing.On("FetchContracts", mock.Anything, "AAPL").Return(testContracts(), nil)

	o := session.Orchestrator
	o.SetTicker("AAPL")
	older, err := o.LoadContracts(ctx)
	require.NoError(t, err)
	newer, err := o.SelectContract(1)
	require.NoError(t, err)
	require.Greater(t, newer.Version, older.Version)

	// A concurrent request's observer delivers the older snapshot last.
	f.manager.observer(session)(orchestrator.Event{Action: orchestrator.ActionContractsLoaded, Snapshot: older})

	summary, err := f.store.GetSummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "selected", summary.State)
	require.NotNil(t, summary.ContractIndex)
	assert.Equal(t, 1, *summary.ContractIndex)
}

func TestSessionManager_FailedLoadsAreNotJournaled(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	session, err := f.manager.Create(ctx)
	require.NoError(t, err)

	f.pricing.On("FetchContracts", mock.Anything, "AAPL").Return(testContracts(), nil)
	f.pricing.On("FetchHeatmap", mock.Anything, "AAPL", testContracts()[0], models.ModelBlackScholes).
		Return(nil, assert.AnError)

	o := session.Orchestrator
	o.SetTicker("AAPL")
	_, err = o.LoadContracts(ctx)
	require.NoError(t, err)
	_, err = o.SelectContract(0)
	require.NoError(t, err)
	_, err = o.LoadHeatmap(ctx)
	require.Error(t, err)

	assert.Empty(t, f.journal.lookups)
	assert.Equal(t, 0, session.Lookups())
	summary, err := f.store.GetSummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "heatmap_error", summary.State)
}

func TestSessionManager_JournalErrorDoesNotFailLoad(t *testing.T) {
	f := newManagerFixture(t)
	f.journal.err = assert.AnError
	ctx := context.Background()
	session, err := f.manager.Create(ctx)
	require.NoError(t, err)

	f.pricing.On("FetchContracts", mock.Anything, "AAPL").Return(testContracts(), nil)
	f.pricing.On("FetchHeatmap", mock.Anything, "AAPL", testContracts()[0], models.ModelBlackScholes).
		Return(testHeatmap(), nil)

	o := session.Orchestrator
	o.SetTicker("AAPL")
	_, err = o.LoadContracts(ctx)
	require.NoError(t, err)
	_, err = o.SelectContract(0)
	require.NoError(t, err)
	snap, err := o.LoadHeatmap(ctx)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.HeatmapReady, snap.State)
}

func TestSessionManager_Delete(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	session, err := f.manager.Create(ctx)
	require.NoError(t, err)

	updates, unsubscribe := session.Orchestrator.Subscribe(1)
	defer unsubscribe()

	require.NoError(t, f.manager.Delete(ctx, session.ID))
	assert.Equal(t, 0, f.manager.Count())

	_, open := <-updates
	assert.False(t, open)

	_, err = f.store.GetSummary(ctx, session.ID)
	assert.ErrorIs(t, err, interfaces.ErrSummaryNotFound)

	assert.ErrorIs(t, f.manager.Delete(ctx, session.ID), ErrSessionNotFound)
}

func TestSessionManager_SweepEvictsIdleSessions(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	stale, err := f.manager.Create(ctx)
	require.NoError(t, err)
	f.advance(20 * time.Minute)
	active, err := f.manager.Create(ctx)
	require.NoError(t, err)

	f.advance(15 * time.Minute)
	_, err = f.manager.Get(active.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.manager.Sweep())
	_, err = f.manager.Get(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.manager.Get(active.ID)
	assert.NoError(t, err)

	summary, err := f.store.GetSummary(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, stale.ID, summary.ID)
}

func TestSessionManager_ActionsKeepSessionAlive(t *testing.T) {
	f := newManagerFixture(t)
	session, err := f.manager.Create(context.Background())
	require.NoError(t, err)

	f.advance(29 * time.Minute)
	session.Orchestrator.SetTicker("MSFT")
	f.advance(29 * time.Minute)

	assert.Equal(t, 0, f.manager.Sweep())
	assert.Equal(t, 1, f.manager.Count())
}

func TestSessionManager_SweepDisabled(t *testing.T) {
	manager := NewSessionManager(&mockPricing{}, cache.NewInMemorySessionStore(0, 5), config.SessionConfig{}, quietLogger())
	defer manager.Stop()
	_, err := manager.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, manager.Sweep())
}

func TestSessionManager_StartStop(t *testing.T) {
	manager := NewSessionManager(&mockPricing{}, cache.NewInMemorySessionStore(0, 5),
		config.SessionConfig{IdleTimeout: time.Nanosecond, SweepInterval: 5 * time.Millisecond},
		quietLogger())
	_, err := manager.Create(context.Background())
	require.NoError(t, err)

	manager.Start()
	assert.Eventually(t, func() bool { return manager.Count() == 0 }, time.Second, 5*time.Millisecond)
	manager.Stop()
}

func TestSessionManager_RecentLookupsWithoutJournal(t *testing.T) {
	manager := NewSessionManager(&mockPricing{}, cache.NewInMemorySessionStore(0, 5), config.SessionConfig{}, quietLogger())
	defer manager.Stop()

	lookups, err := manager.RecentLookups(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	assert.Empty(t, lookups)
}
