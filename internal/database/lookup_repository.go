package database

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const defaultLookupLimit = 50

const lookupSchema = `
	CREATE TABLE IF NOT EXISTS heatmap_lookups (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike NUMERIC NOT NULL,
		premium NUMERIC NOT NULL,
		expiry DATE NOT NULL,
		model TEXT NOT NULL,
		probability_profit NUMERIC NOT NULL,
		max_risk NUMERIC NOT NULL,
		max_return NUMERIC,
		max_return_unlimited BOOLEAN NOT NULL DEFAULT false,
		breakeven_price NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_heatmap_lookups_ticker_created
		ON heatmap_lookups (ticker, created_at DESC)
`

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

var _ interfaces.LookupJournal = (*LookupRepository)(nil)

// LookupRepository journals successful heatmap lookups.
type LookupRepository struct {
	pool DatabasePool
}

// NewLookupRepository creates a new lookup repository.
//
// Parameters:
//
//	pool: The database connection pool.
//
// Returns:
//
//	*LookupRepository: The initialized repository.
func NewLookupRepository(pool DatabasePool) *LookupRepository {
	return &LookupRepository{
		pool: pool,
	}
}

// EnsureSchema creates the journal table when it does not exist yet.
func (r *LookupRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, lookupSchema); err != nil {
		return fmt.Errorf("failed to create heatmap_lookups table: %w", err)
	}
	return nil
}

// RecordLookup stores a lookup and returns it with its id and timestamp.
//
// Parameters:
//
//	ctx: Context.
//	lookup: The lookup to store. ID and CreatedAt are ignored.
//
// Returns:
//
//	*models.HeatmapLookup: The stored entry.
//	error: Error if operation fails.
func (r *LookupRepository) RecordLookup(ctx context.Context, lookup models.HeatmapLookup) (*models.HeatmapLookup, error) {
	query := `
		INSERT INTO heatmap_lookups (
			session_id, ticker, option_type, strike, premium, expiry, model,
			probability_profit, max_risk, max_return, max_return_unlimited, breakeven_price
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`

	maxReturn := decimal.NullDecimal{}
	if !lookup.MaxReturn.Unlimited {
		maxReturn = decimal.NewNullDecimal(lookup.MaxReturn.Value)
	}

	stored := lookup
	err := r.pool.QueryRow(ctx, query,
		lookup.SessionID,
		models.NormalizeTicker(lookup.Ticker),
		string(lookup.Contract.Type),
		lookup.Contract.Strike,
		lookup.Contract.Premium,
		lookup.Contract.Expiry.Time,
		string(lookup.Model),
		lookup.ProbabilityProfit,
		lookup.MaxRisk,
		maxReturn,
		lookup.MaxReturn.Unlimited,
		lookup.BreakevenPrice,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record heatmap lookup: %w", err)
	}
	stored.Ticker = models.NormalizeTicker(lookup.Ticker)

	return &stored, nil
}

// RecentLookups returns the newest lookups, optionally for one ticker.
//
// Parameters:
//
//	ctx: Context.
//	ticker: Ticker filter; empty returns every ticker.
//	limit: Maximum rows; non-positive uses the default.
//
// Returns:
//
//	[]models.HeatmapLookup: Lookups, newest first.
//	error: Error if operation fails.
func (r *LookupRepository) RecentLookups(ctx context.Context, ticker string, limit int) ([]models.HeatmapLookup, error) {
	if limit <= 0 {
		limit = defaultLookupLimit
	}

	query := `
		SELECT id, session_id, ticker, option_type, strike, premium, expiry, model,
			probability_profit, max_risk, max_return, max_return_unlimited, breakeven_price, created_at
		FROM heatmap_lookups
		WHERE ($1 = '' OR ticker = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, models.NormalizeTicker(ticker), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query heatmap lookups: %w", err)
	}
	defer rows.Close()

	var lookups []models.HeatmapLookup
	for rows.Next() {
		var (
			lookup     models.HeatmapLookup
			optionType string
			model      string
			expiry     time.Time
			maxReturn  decimal.NullDecimal
			unlimited  bool
		)
		if err := rows.Scan(
			&lookup.ID,
			&lookup.SessionID,
			&lookup.Ticker,
			&optionType,
			&lookup.Contract.Strike,
			&lookup.Contract.Premium,
			&expiry,
			&model,
			&lookup.ProbabilityProfit,
			&lookup.MaxRisk,
			&maxReturn,
			&unlimited,
			&lookup.BreakevenPrice,
			&lookup.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan heatmap lookup: %w", err)
		}
		lookup.Contract.Type = models.OptionType(optionType)
		lookup.Contract.Expiry = models.DateOf(expiry)
		lookup.Model = models.PricingModel(model)
		lookup.MaxReturn = models.MaxReturn{Value: maxReturn.Decimal, Unlimited: unlimited}
		lookups = append(lookups, lookup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating heatmap lookups: %w", err)
	}

	return lookups, nil
}
