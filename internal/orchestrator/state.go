package orchestrator

import (
	"fmt"

	"github.com/irfndi/optionscope/internal/catalog"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/selection"
)

// State is the coarse label of the orchestrator.
type State int

const (
	Idle State = iota
	ContractsLoading
	ContractsReady
	Selected
	HeatmapLoading
	HeatmapReady
	ContractsError
	HeatmapError
)

var stateNames = [...]string{
	Idle:             "idle",
	ContractsLoading: "contracts_loading",
	ContractsReady:   "contracts_ready",
	Selected:         "selected",
	HeatmapLoading:   "heatmap_loading",
	HeatmapReady:     "heatmap_ready",
	ContractsError:   "contracts_error",
	HeatmapError:     "heatmap_error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown orchestrator state %q", b)
}

// IsLoading reports whether a request is in flight.
func (s State) IsLoading() bool {
	return s == ContractsLoading || s == HeatmapLoading
}

// IsError reports whether the last request failed.
func (s State) IsError() bool {
	return s == ContractsError || s == HeatmapError
}

// Snapshot is an immutable view of the orchestrator after one transition.
// Catalog and Heatmap are shared between snapshots and must not be modified.
type Snapshot struct {
	Version   uint64
	State     State
	Ticker    string
	Catalog   *catalog.Catalog
	Selection selection.State
	Heatmap   *models.HeatmapResult
	Err       error
}

// Model returns the chosen pricing model.
func (s Snapshot) Model() models.PricingModel {
	return s.Selection.Model()
}

// SelectedContract resolves the selection against the catalog.
func (s Snapshot) SelectedContract() (models.OptionContract, bool) {
	idx, ok := s.Selection.Index()
	if !ok {
		return models.OptionContract{}, false
	}
	return s.Catalog.At(idx)
}

// LoadedTicker returns the ticker of the current catalog, which can differ
// from the pending Ticker while the user is typing.
func (s Snapshot) LoadedTicker() string {
	return s.Catalog.Ticker()
}

// ErrorMessage returns the carried error text, or "".
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
