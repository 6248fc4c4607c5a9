package interfaces

import (
	"context"

	"github.com/irfndi/optionscope/internal/models"
)

// PricingService is the remote pricing backend as seen by the orchestrator.
// Implementations must not cache responses: every call reaches the service.
type PricingService interface {
	// FetchContracts returns the option chain of ticker. An empty slice means
	// the ticker has no listed options.
	FetchContracts(ctx context.Context, ticker string) ([]models.OptionContract, error)
	// FetchHeatmap returns the P/L grid and metrics of one contract priced
	// with model. ticker must be the one the contract was retrieved for.
	FetchHeatmap(ctx context.Context, ticker string, contract models.OptionContract, model models.PricingModel) (*models.HeatmapResult, error)
}

// PricingHealthChecker is implemented by pricing clients that can probe the service.
type PricingHealthChecker interface {
	Ping(ctx context.Context) error
}
