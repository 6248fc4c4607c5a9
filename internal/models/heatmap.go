package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnlimitedLiteral is how the pricing service spells an unbounded max return.
const UnlimitedLiteral = "Unlimited"

// AxisLabel is one tick of a heatmap axis. The service sends numbers for
// days-to-expiry and prices but categorical labels are allowed too.
type AxisLabel struct {
	Number  float64
	Text    string
	numeric bool
}

// NumericLabel builds a numeric axis label.
func NumericLabel(v float64) AxisLabel {
	return AxisLabel{Number: v, numeric: true}
}

// TextLabel builds a categorical axis label.
func TextLabel(s string) AxisLabel {
	return AxisLabel{Text: s}
}

// IsNumeric reports whether the label carries a number.
func (a AxisLabel) IsNumeric() bool {
	return a.numeric
}

func (a AxisLabel) String() string {
	if a.numeric {
		return strconv.FormatFloat(a.Number, 'f', -1, 64)
	}
	return a.Text
}

func (a AxisLabel) MarshalJSON() ([]byte, error) {
	if a.numeric {
		return json.Marshal(a.Number)
	}
	return json.Marshal(a.Text)
}

func (a *AxisLabel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("empty axis label")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = TextLabel(s)
		return nil
	case 'n', 't', 'f', '{', '[':
		return fmt.Errorf("axis label must be a number or a string, got %s", b)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("invalid axis label %s: %w", b, err)
	}
	*a = NumericLabel(f)
	return nil
}

// MaxReturn is the best-case profit of the position, possibly unbounded.
type MaxReturn struct {
	Value     decimal.Decimal
	Unlimited bool
}

func (m MaxReturn) String() string {
	if m.Unlimited {
		return UnlimitedLiteral
	}
	return m.Value.String()
}

func (m MaxReturn) MarshalJSON() ([]byte, error) {
	if m.Unlimited {
		return json.Marshal(UnlimitedLiteral)
	}
	return m.Value.MarshalJSON()
}

// UnmarshalJSON accepts a number, a numeric string or "Unlimited".
func (m *MaxReturn) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(s), UnlimitedLiteral) {
			*m = MaxReturn{Unlimited: true}
			return nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid max_return %q", s)
		}
		*m = MaxReturn{Value: d}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("invalid max_return %s: %w", b, err)
	}
	*m = MaxReturn{Value: d}
	return nil
}

// Metrics holds the scalar results of a heatmap lookup. The first four are
// always sent; the rest depend on the model and may be absent.
type Metrics struct {
	ProbabilityProfit decimal.Decimal `json:"probability_profit"`
	MaxRisk           decimal.Decimal `json:"max_risk"`
	MaxReturn         MaxReturn       `json:"max_return"`
	BreakevenPrice    decimal.Decimal `json:"breakeven_price"`

	CurrentPrice decimal.NullDecimal `json:"current_price"`
	Strike       decimal.NullDecimal `json:"strike"`
	Premium      decimal.NullDecimal `json:"premium"`
	EntryCost    decimal.NullDecimal `json:"entry_cost"`

	Delta decimal.NullDecimal `json:"delta"`
	Gamma decimal.NullDecimal `json:"gamma"`
	Theta decimal.NullDecimal `json:"theta"`
	Vega  decimal.NullDecimal `json:"vega"`
	Rho   decimal.NullDecimal `json:"rho"`
}

// RequiredMetricKeys lists the metric keys every model must return.
var RequiredMetricKeys = []string{"probability_profit", "max_risk", "max_return", "breakeven_price"}

// HasGreeks reports whether the model returned any Greek.
func (m Metrics) HasGreeks() bool {
	return m.Delta.Valid || m.Gamma.Valid || m.Theta.Valid || m.Vega.Valid || m.Rho.Valid
}

// Greeks returns the present Greeks keyed by name, in the usual order.
func (m Metrics) Greeks() []NamedValue {
	all := []NamedValue{
		{Name: "delta", Value: m.Delta},
		{Name: "gamma", Value: m.Gamma},
		{Name: "theta", Value: m.Theta},
		{Name: "vega", Value: m.Vega},
		{Name: "rho", Value: m.Rho},
	}
	present := all[:0]
	for _, g := range all {
		if g.Value.Valid {
			present = append(present, g)
		}
	}
	return present
}

// NamedValue pairs an optional metric with its wire name.
type NamedValue struct {
	Name  string
	Value decimal.NullDecimal
}

// HeatmapResult is the P/L grid for one (contract, model) lookup. Z has
// len(Y) rows of len(X) cells. Values are shared between snapshots and must
// be treated as read-only.
type HeatmapResult struct {
	X       []AxisLabel `json:"x"`
	Y       []AxisLabel `json:"y"`
	Z       [][]float64 `json:"z"`
	Metrics Metrics     `json:"metrics"`
}

// Dims returns the grid size as (rows, cols).
func (h *HeatmapResult) Dims() (int, int) {
	return len(h.Y), len(h.X)
}

// Range returns the smallest and largest P/L value in the grid.
func (h *HeatmapResult) Range() (float64, float64) {
	var lo, hi float64
	first := true
	for _, row := range h.Z {
		for _, v := range row {
			if first {
				lo, hi, first = v, v, false
				continue
			}
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	return lo, hi
}
