package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateLayout is the wire format of contract expiries.
const DateLayout = "2006-01-02"

var (
	// ErrUnknownOptionType is returned when an option type is neither call nor put.
	ErrUnknownOptionType = errors.New("unknown option type")
	// ErrUnknownModel is returned for pricing models the service does not offer.
	ErrUnknownModel = errors.New("unknown pricing model")
)

// NormalizeTicker trims and uppercases a ticker symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// OptionType is the right a contract grants.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// ParseOptionType accepts "call" or "put" in any case.
func ParseOptionType(s string) (OptionType, error) {
	switch t := OptionType(strings.ToLower(strings.TrimSpace(s))); t {
	case OptionTypeCall, OptionTypePut:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOptionType, s)
	}
}

// Valid reports whether t is call or put.
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// PricingModel names the valuation method the pricing service applies.
type PricingModel string

const (
	ModelBlackScholes PricingModel = "black-scholes"
	ModelMonteCarlo   PricingModel = "monte-carlo"
	ModelBinomial     PricingModel = "binomial"
)

var titleCaser = cases.Title(language.English)

// DefaultPricingModel is the model used until the user picks another one.
func DefaultPricingModel() PricingModel {
	return ModelBlackScholes
}

// AllPricingModels returns the supported models in menu order.
func AllPricingModels() []PricingModel {
	return []PricingModel{ModelBlackScholes, ModelMonteCarlo, ModelBinomial}
}

// ParsePricingModel validates s against the supported models.
func ParsePricingModel(s string) (PricingModel, error) {
	m := PricingModel(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
	return m, nil
}

// Valid reports whether m is one of the supported models.
func (m PricingModel) Valid() bool {
	switch m {
	case ModelBlackScholes, ModelMonteCarlo, ModelBinomial:
		return true
	}
	return false
}

// DisplayName returns the menu label, e.g. "Black Scholes".
func (m PricingModel) DisplayName() string {
	return titleCaser.String(strings.ReplaceAll(string(m), "-", " "))
}

// Date is a calendar date without time of day, kept at UTC midnight.
type Date struct {
	time.Time
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses an ISO date. A full timestamp is accepted and truncated.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && s[len(DateLayout)] == 'T' {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// Before reports whether d is an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether both dates name the same day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// DaysUntil counts whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// OptionContract is one tradable contract of a ticker's chain. The ticker is
// carried by the catalog that holds the contract.
type OptionContract struct {
	Type    OptionType      `json:"type"`
	Strike  decimal.Decimal `json:"strike"`
	Premium decimal.Decimal `json:"premium"`
	Expiry  Date            `json:"expiry"`
}

// Label renders the contract the way the chain picker lists it.
func (c OptionContract) Label() string {
	return fmt.Sprintf("%s $%s (premium: $%s) exp: %s",
		strings.ToUpper(string(c.Type)), c.Strike.String(), c.Premium.String(), c.Expiry)
}

// Validate checks the contract invariants that do not depend on the clock.
func (c OptionContract) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOptionType, c.Type)
	}
	if !c.Strike.IsPositive() {
		return fmt.Errorf("strike must be positive, got %s", c.Strike)
	}
	if c.Premium.IsNegative() {
		return fmt.Errorf("premium must not be negative, got %s", c.Premium)
	}
	if c.Expiry.IsZero() {
		return errors.New("expiry is required")
	}
	return nil
}
