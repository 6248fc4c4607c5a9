package orchestrator

import (
	"regexp"
	"time"

	"github.com/irfndi/optionscope/internal/catalog"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/selection"
)

// Action names a user action or the completion of a request.
type Action string

const (
	ActionSetTicker       Action = "set_ticker"
	ActionLoadContracts   Action = "load_contracts"
	ActionContractsLoaded Action = "contracts_loaded"
	ActionSelectContract  Action = "select_contract"
	ActionSetModel        Action = "set_model"
	ActionLoadHeatmap     Action = "load_heatmap"
	ActionHeatmapLoaded   Action = "heatmap_loaded"
	ActionReset           Action = "reset"
)

// Index tickers (^GSPC), class shares (BRK.B) and futures style (ES=F) are accepted.
var tickerPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.=-]{0,14}$`)

// ValidateTicker checks a normalized ticker.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return &InvalidTickerError{Reason: "ticker is empty"}
	}
	if !tickerPattern.MatchString(ticker) {
		return &InvalidTickerError{Ticker: ticker, Reason: "expected letters, digits, '.', '-' or '=' (at most 15 characters)"}
	}
	return nil
}

// heatmapRequest is the (ticker, contract, model) key captured when a
// heatmap load is issued.
type heatmapRequest struct {
	ticker   string
	contract models.OptionContract
	model    models.PricingModel
}

func setTicker(s Snapshot, ticker string) Snapshot {
	s.Ticker = models.NormalizeTicker(ticker)
	return s
}

func beginLoadContracts(s Snapshot) (Snapshot, string, error) {
	if err := ValidateTicker(s.Ticker); err != nil {
		return s, "", err
	}
	s.State = ContractsLoading
	s.Err = nil
	return s, s.Ticker, nil
}

func contractsLoaded(s Snapshot, ticker string, contracts []models.OptionContract, fetchedAt time.Time) Snapshot {
	s.State = ContractsReady
	s.Catalog = catalog.New(ticker, contracts, fetchedAt)
	s.Selection = s.Selection.Clear()
	s.Heatmap = nil
	s.Err = nil
	return s
}

func contractsFailed(s Snapshot, err error) Snapshot {
	s.State = ContractsError
	s.Err = err
	return s
}

func selectContract(s Snapshot, index int) (Snapshot, error) {
	switch s.State {
	case ContractsReady, Selected, HeatmapReady, HeatmapError:
	default:
		return s, &IllegalTransitionError{Action: ActionSelectContract, State: s.State}
	}

	sel, err := s.Selection.Select(index, s.Catalog.Len())
	if err != nil {
		return s, err
	}
	s.Selection = sel
	s.Heatmap = nil
	s.State = Selected
	s.Err = nil
	return s, nil
}

func setModel(s Snapshot, model models.PricingModel) (Snapshot, error) {
	if !s.Selection.HasSelection() {
		return s, &IllegalTransitionError{Action: ActionSetModel, State: s.State}
	}
	sel, err := s.Selection.WithModel(model)
	if err != nil {
		return s, err
	}
	s.Selection = sel
	s.Heatmap = nil
	if s.State == HeatmapReady || s.State == HeatmapLoading {
		s.State = Selected
	}
	return s, nil
}

func beginLoadHeatmap(s Snapshot) (Snapshot, heatmapRequest, error) {
	switch s.State {
	case Selected, HeatmapError, HeatmapLoading:
	default:
		return s, heatmapRequest{}, &IllegalTransitionError{Action: ActionLoadHeatmap, State: s.State}
	}
	contract, ok := s.SelectedContract()
	if !ok {
		return s, heatmapRequest{}, &IllegalTransitionError{Action: ActionLoadHeatmap, State: s.State}
	}

	req := heatmapRequest{
		ticker:   s.Catalog.Ticker(),
		contract: contract,
		model:    s.Selection.Model(),
	}
	s.State = HeatmapLoading
	s.Heatmap = nil
	s.Err = nil
	return s, req, nil
}

func heatmapLoaded(s Snapshot, result *models.HeatmapResult) Snapshot {
	s.State = HeatmapReady
	s.Heatmap = result
	s.Err = nil
	return s
}

func heatmapFailed(s Snapshot, err error) Snapshot {
	s.State = HeatmapError
	s.Heatmap = nil
	s.Err = err
	return s
}

func reset(Snapshot) Snapshot {
	return Snapshot{State: Idle, Selection: selection.New()}
}
