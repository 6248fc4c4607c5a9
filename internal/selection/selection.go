// Package selection tracks the contract and pricing model a user has chosen.
package selection

import (
	"fmt"

	"github.com/irfndi/optionscope/internal/models"
)

// InvalidIndexError is returned when a selection falls outside the catalog.
type InvalidIndexError struct {
	Index int
	Len   int
}

func (e *InvalidIndexError) Error() string {
	if e.Len == 0 {
		return fmt.Sprintf("contract index %d out of range: catalog is empty", e.Index)
	}
	return fmt.Sprintf("contract index %d out of range [0, %d)", e.Index, e.Len)
}

// State is the user's current choice. The zero value has no selection and
// the default pricing model. Operations return a new State.
type State struct {
	index    int
	selected bool
	model    models.PricingModel
}

// New returns a cleared selection.
func New() State {
	return State{}
}

// Select points the selection at index in a catalog of catalogLen contracts.
// The receiver is returned unchanged with an *InvalidIndexError when index is
// out of range.
func (s State) Select(index, catalogLen int) (State, error) {
	if index < 0 || index >= catalogLen {
		return s, &InvalidIndexError{Index: index, Len: catalogLen}
	}
	s.index = index
	s.selected = true
	return s, nil
}

// WithModel changes the pricing model and keeps the selected contract.
func (s State) WithModel(model models.PricingModel) (State, error) {
	if !model.Valid() {
		return s, fmt.Errorf("%w: %q", models.ErrUnknownModel, model)
	}
	s.model = model
	return s, nil
}

// Clear drops the selected contract and restores the default model.
func (s State) Clear() State {
	return State{}
}

// Index returns the selected flat catalog index.
func (s State) Index() (int, bool) {
	return s.index, s.selected
}

// HasSelection reports whether a contract is selected.
func (s State) HasSelection() bool {
	return s.selected
}

// Model returns the chosen pricing model.
func (s State) Model() models.PricingModel {
	if s.model == "" {
		return models.DefaultPricingModel()
	}
	return s.model
}
