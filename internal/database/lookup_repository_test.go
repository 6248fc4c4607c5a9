package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/irfndi/optionscope/internal/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lookupColumns = []string{
	"id", "session_id", "ticker", "option_type", "strike", "premium", "expiry", "model",
	"probability_profit", "max_risk", "max_return", "max_return_unlimited", "breakeven_price", "created_at",
}

func sampleLookup(unlimited bool) models.HeatmapLookup {
	maxReturn := models.MaxReturn{Value: decimal.RequireFromString("765")}
	if unlimited {
		maxReturn = models.MaxReturn{Unlimited: true}
	}
	return models.HeatmapLookup{
		SessionID: "session-1",
		Ticker:    "aapl",
		Contract: models.OptionContract{
			Type:    models.OptionTypeCall,
			Strike:  decimal.RequireFromString("150"),
			Premium: decimal.RequireFromString("2.35"),
			Expiry:  models.NewDate(2025, time.June, 20),
		},
		Model:             models.ModelMonteCarlo,
		ProbabilityProfit: decimal.RequireFromString("0.42"),
		MaxRisk:           decimal.RequireFromString("235"),
		MaxReturn:         maxReturn,
		BreakevenPrice:    decimal.RequireFromString("152.35"),
	}
}

func newMockRepository(t *testing.T) (*LookupRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewLookupRepository(mock), mock
}

func TestLookupRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS heatmap_lookups").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRepository_EnsureSchema_Error(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS heatmap_lookups").
		WillReturnError(errors.New("permission denied"))

	err := repo.EnsureSchema(context.Background())
	assert.ErrorContains(t, err, "permission denied")
}

func TestLookupRepository_RecordLookup(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	lookup := sampleLookup(false)

	mock.ExpectQuery("INSERT INTO heatmap_lookups").
		WithArgs(
			"session-1", "AAPL", "call",
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC),
			"monte-carlo",
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			decimal.NewNullDecimal(decimal.RequireFromString("765")),
			false,
			pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(12), created))

	stored, err := repo.RecordLookup(context.Background(), lookup)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stored.ID)
	assert.Equal(t, created, stored.CreatedAt)
	assert.Equal(t, "AAPL", stored.Ticker)
	assert.Equal(t, lookup.Contract, stored.Contract)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRepository_RecordLookup_UnlimitedReturn(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("INSERT INTO heatmap_lookups").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), decimal.NullDecimal{}, true, pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	stored, err := repo.RecordLookup(context.Background(), sampleLookup(true))
	require.NoError(t, err)
	assert.True(t, stored.MaxReturn.Unlimited)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRepository_RecordLookup_Error(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("INSERT INTO heatmap_lookups").
		WillReturnError(errors.New("connection reset"))

	stored, err := repo.RecordLookup(context.Background(), sampleLookup(false))
	assert.Nil(t, stored)
	assert.ErrorContains(t, err, "failed to record heatmap lookup")
}

func TestLookupRepository_RecentLookups(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	expiry := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(lookupColumns).
		AddRow(int64(2), "session-1", "AAPL", "put", "145", "1.10", expiry, "binomial",
			"0.38", "110", "14390", false, "143.90", created.Add(time.Minute)).
		AddRow(int64(1), "session-1", "AAPL", "call", "150", "2.35", expiry, "black-scholes",
			"0.42", "235", nil, true, "152.35", created)

	mock.ExpectQuery("SELECT (.+) FROM heatmap_lookups").
		WithArgs("AAPL", 10).
		WillReturnRows(rows)

	lookups, err := repo.RecentLookups(context.Background(), " aapl ", 10)
	require.NoError(t, err)
	require.Len(t, lookups, 2)

	assert.Equal(t, int64(2), lookups[0].ID)
	assert.Equal(t, models.OptionTypePut, lookups[0].Contract.Type)
	assert.Equal(t, models.ModelBinomial, lookups[0].Model)
	assert.True(t, decimal.RequireFromString("14390").Equal(lookups[0].MaxReturn.Value))
	assert.False(t, lookups[0].MaxReturn.Unlimited)

	assert.Equal(t, models.NewDate(2025, time.June, 20), lookups[1].Contract.Expiry)
	assert.True(t, lookups[1].MaxReturn.Unlimited)
	assert.True(t, decimal.RequireFromString("152.35").Equal(lookups[1].BreakevenPrice))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRepository_RecentLookups_DefaultLimitAndEmpty(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM heatmap_lookups").
		WithArgs("", defaultLookupLimit).
		WillReturnRows(pgxmock.NewRows(lookupColumns))

	lookups, err := repo.RecentLookups(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, lookups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRepository_RecentLookups_QueryError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM heatmap_lookups").
		WillReturnError(errors.New("timeout"))

	_, err := repo.RecentLookups(context.Background(), "MSFT", 5)
	assert.ErrorContains(t, err, "failed to query heatmap lookups")
}
