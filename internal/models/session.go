package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionSummary is the persisted outline of a presentation session. It is
// enough to show a session list and to restore the last ticker.
type SessionSummary struct {
	ID            string       `json:"id"`
	Ticker        string       `json:"ticker,omitempty"`
	LoadedTicker  string       `json:"loaded_ticker,omitempty"`
	State         string       `json:"state"`
	ContractIndex *int         `json:"contract_index,omitempty"`
	Model         PricingModel `json:"model"`
	Lookups       int          `json:"lookups"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// HeatmapLookup records one successful heatmap retrieval.
type HeatmapLookup struct {
	ID                int64           `json:"id" db:"id"`
	SessionID         string          `json:"session_id" db:"session_id"`
	Ticker            string          `json:"ticker" db:"ticker"`
	Contract          OptionContract  `json:"contract"`
	Model             PricingModel    `json:"model" db:"model"`
	ProbabilityProfit decimal.Decimal `json:"probability_profit" db:"probability_profit"`
	MaxRisk           decimal.Decimal `json:"max_risk" db:"max_risk"`
	MaxReturn         MaxReturn       `json:"max_return"`
	BreakevenPrice    decimal.Decimal `json:"breakeven_price" db:"breakeven_price"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// NewHeatmapLookup builds a journal entry from a loaded heatmap.
func NewHeatmapLookup(sessionID, ticker string, contract OptionContract, model PricingModel, result *HeatmapResult) HeatmapLookup {
	lookup := HeatmapLookup{
		SessionID: sessionID,
		Ticker:    ticker,
		Contract:  contract,
		Model:     model,
	}
	if result != nil {
		lookup.ProbabilityProfit = result.Metrics.ProbabilityProfit
		lookup.MaxRisk = result.Metrics.MaxRisk
		lookup.MaxReturn = result.Metrics.MaxReturn
		lookup.BreakevenPrice = result.Metrics.BreakevenPrice
	}
	return lookup
}
