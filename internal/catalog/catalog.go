// Package catalog holds the option chain retrieved for one ticker and the
// expiry grouping shown by the contract picker.
package catalog

import (
	"iter"
	"slices"
	"time"

	"github.com/irfndi/optionscope/internal/models"
)

// Entry is a contract together with its position in the flat catalog.
// Selections are made by Index, never by position within a group.
type Entry struct {
	Index    int                   `json:"index"`
	Contract models.OptionContract `json:"contract"`
}

// ExpiryGroup collects the contracts sharing one expiry date.
type ExpiryGroup struct {
	Expiry  models.Date `json:"expiry"`
	Entries []Entry     `json:"entries"`
}

// Catalog is an immutable, ordered option chain. A new Catalog replaces the
// previous one wholesale on every fetch.
type Catalog struct {
	ticker    string
	contracts []models.OptionContract
	fetchedAt time.Time
}

// New builds a catalog for ticker. The contracts slice is copied.
func New(ticker string, contracts []models.OptionContract, fetchedAt time.Time) *Catalog {
	return &Catalog{
		ticker:    models.NormalizeTicker(ticker),
		contracts: slices.Clone(contracts),
		fetchedAt: fetchedAt,
	}
}

// Ticker returns the symbol every contract in the catalog belongs to.
func (c *Catalog) Ticker() string {
	if c == nil {
		return ""
	}
	return c.ticker
}

// FetchedAt returns when the chain was retrieved.
func (c *Catalog) FetchedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.fetchedAt
}

// Len returns the number of contracts. A nil catalog is empty.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.contracts)
}

// At returns the contract at flat index i.
func (c *Catalog) At(i int) (models.OptionContract, bool) {
	if i < 0 || i >= c.Len() {
		return models.OptionContract{}, false
	}
	return c.contracts[i], true
}

// Contracts returns a copy of the flat contract list.
func (c *Catalog) Contracts() []models.OptionContract {
	if c == nil {
		return nil
	}
	return slices.Clone(c.contracts)
}

// GroupByExpiry yields one group per distinct expiry, in order of first
// appearance. Contracts keep catalog order inside a group. The sequence may
// be ranged over any number of times.
func (c *Catalog) GroupByExpiry() iter.Seq[ExpiryGroup] {
	return func(yield func(ExpiryGroup) bool) {
		n := c.Len()
		emitted := make(map[string]bool)
		for i := 0; i < n; i++ {
			expiry := c.contracts[i].Expiry
			key := expiry.String()
			if emitted[key] {
				continue
			}
			emitted[key] = true

			group := ExpiryGroup{Expiry: expiry}
			for j := i; j < n; j++ {
				if c.contracts[j].Expiry.Equal(expiry) {
					group.Entries = append(group.Entries, Entry{Index: j, Contract: c.contracts[j]})
				}
			}
			if !yield(group) {
				return
			}
		}
	}
}

// Groups collects GroupByExpiry into a slice.
func (c *Catalog) Groups() []ExpiryGroup {
	return slices.Collect(c.GroupByExpiry())
}
