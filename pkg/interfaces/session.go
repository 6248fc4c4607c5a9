package interfaces

import (
	"context"
	"errors"

	"github.com/irfndi/optionscope/internal/models"
)

// ErrSummaryNotFound is returned when no summary is stored for a session.
var ErrSummaryNotFound = errors.New("session summary not found")

// SessionStore persists session summaries and the recently looked up tickers.
type SessionStore interface {
	SaveSummary(ctx context.Context, summary models.SessionSummary) error
	GetSummary(ctx context.Context, id string) (*models.SessionSummary, error)
	DeleteSummary(ctx context.Context, id string) error
	PushRecentTicker(ctx context.Context, ticker string) error
	RecentTickers(ctx context.Context, limit int) ([]string, error)
}

// LookupJournal records heatmap lookups.
type LookupJournal interface {
	RecordLookup(ctx context.Context, lookup models.HeatmapLookup) (*models.HeatmapLookup, error)
	RecentLookups(ctx context.Context, ticker string, limit int) ([]models.HeatmapLookup, error)
}
