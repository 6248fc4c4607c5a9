package handlers

import (
	"github.com/irfndi/optionscope/internal/catalog"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
)

// ContractView is a catalog entry as sent to clients.
type ContractView struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	models.OptionContract
}

// GroupView is one expiry group of the chain picker.
type GroupView struct {
	Expiry    models.Date    `json:"expiry"`
	Contracts []ContractView `json:"contracts"`
}

// ModelView describes a pricing model menu entry.
type ModelView struct {
	ID   models.PricingModel `json:"id"`
	Name string              `json:"name"`
}

// SnapshotView is the JSON form of an orchestrator snapshot.
type SnapshotView struct {
	Version       uint64                `json:"version"`
	State         orchestrator.State    `json:"state"`
	Ticker        string                `json:"ticker"`
	LoadedTicker  string                `json:"loaded_ticker,omitempty"`
	Contracts     []ContractView        `json:"contracts"`
	SelectedIndex *int                  `json:"selected_index"`
	Selected      *ContractView         `json:"selected,omitempty"`
	Model         ModelView             `json:"model"`
	Heatmap       *models.HeatmapResult `json:"heatmap,omitempty"`
	Error         string                `json:"error,omitempty"`
}

func newContractView(index int, contract models.OptionContract) ContractView {
	return ContractView{Index: index, Label: contract.Label(), OptionContract: contract}
}

func newModelView(model models.PricingModel) ModelView {
	return ModelView{ID: model, Name: model.DisplayName()}
}

// NewSnapshotView renders snap for the API.
func NewSnapshotView(snap orchestrator.Snapshot) SnapshotView {
	view := SnapshotView{
		Version:      snap.Version,
		State:        snap.State,
		Ticker:       snap.Ticker,
		LoadedTicker: snap.LoadedTicker(),
		Contracts:    make([]ContractView, 0, snap.Catalog.Len()),
		Model:        newModelView(snap.Model()),
		Heatmap:      snap.Heatmap,
		Error:        snap.ErrorMessage(),
	}
	for i, contract := range snap.Catalog.Contracts() {
		view.Contracts = append(view.Contracts, newContractView(i, contract))
	}
	if idx, ok := snap.Selection.Index(); ok {
		view.SelectedIndex = &idx
		if contract, ok := snap.SelectedContract(); ok {
			selected := newContractView(idx, contract)
			view.Selected = &selected
		}
	}
	return view
}

// NewGroupViews renders the expiry groups of c.
func NewGroupViews(c *catalog.Catalog) []GroupView {
	groups := make([]GroupView, 0)
	for group := range c.GroupByExpiry() {
		view := GroupView{Expiry: group.Expiry, Contracts: make([]ContractView, 0, len(group.Entries))}
		for _, entry := range group.Entries {
			view.Contracts = append(view.Contracts, newContractView(entry.Index, entry.Contract))
		}
		groups = append(groups, view)
	}
	return groups
}

// AllModelViews lists the pricing models in menu order.
func AllModelViews() []ModelView {
	all := models.AllPricingModels()
	views := make([]ModelView, 0, len(all))
	for _, m := range all {
		views = append(views, newModelView(m))
	}
	return views
}
