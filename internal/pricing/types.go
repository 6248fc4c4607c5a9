package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/irfndi/optionscope/internal/models"
	"github.com/shopspring/decimal"
)

const (
	opFetchContracts = "fetch_contracts"
	opFetchHeatmap   = "fetch_heatmap"
)

// noOptionsMessage is sent with HTTP 200 when a ticker has no listed expiries.
const noOptionsMessage = "no options found"

// ErrorResponse is the error envelope of the pricing service. FastAPI style
// errors carry detail, handler errors carry error.
type ErrorResponse struct {
	Error  string          `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

// Message returns the most specific text in the envelope.
func (r ErrorResponse) Message() string {
	if r.Error != "" {
		return r.Error
	}
	if len(r.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Detail, &s); err == nil {
		return s
	}
	return string(r.Detail)
}

// ContractsResponse is the /options payload.
type ContractsResponse struct {
	ErrorResponse
	Contracts json.RawMessage `json:"contracts"`
}

// HeatmapResponse is the /heatmap payload.
type HeatmapResponse struct {
	ErrorResponse
	Heatmap json.RawMessage `json:"heatmap"`
}

type contractPayload struct {
	Type    *string          `json:"type"`
	Strike  *decimal.Decimal `json:"strike"`
	Premium *decimal.Decimal `json:"premium"`
	Expiry  *string          `json:"expiry"`
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeContracts validates an /options body. today is used to drop
// contracts that have already expired; the number dropped is returned.
func decodeContracts(body []byte, today models.Date) ([]models.OptionContract, int, error) {
	var resp ContractsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &DecodeError{Op: opFetchContracts, Reason: "invalid JSON", Err: err}
	}

	if isAbsent(resp.Contracts) {
		msg := resp.Message()
		switch {
		case strings.EqualFold(strings.TrimSpace(msg), noOptionsMessage):
			return []models.OptionContract{}, 0, nil
		case msg != "":
			return nil, 0, &DecodeError{Op: opFetchContracts, Reason: "service error: " + msg}
		default:
			return nil, 0, &DecodeError{Op: opFetchContracts, Reason: "missing contracts"}
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(resp.Contracts, &items); err != nil {
		return nil, 0, &DecodeError{Op: opFetchContracts, Reason: "contracts is not an array", Err: err}
	}

	contracts := make([]models.OptionContract, 0, len(items))
	dropped := 0
	for i, raw := range items {
		contract, err := decodeContract(raw)
		if err != nil {
			return nil, 0, &DecodeError{Op: opFetchContracts, Reason: fmt.Sprintf("contracts[%d]", i), Err: err}
		}
		if contract.Expiry.Before(today) {
			dropped++
			continue
		}
		contracts = append(contracts, contract)
	}
	return contracts, dropped, nil
}

func decodeContract(raw json.RawMessage) (models.OptionContract, error) {
	var p contractPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.OptionContract{}, err
	}
	switch {
	case p.Type == nil:
		return models.OptionContract{}, fmt.Errorf("missing type")
	case p.Strike == nil:
		return models.OptionContract{}, fmt.Errorf("missing strike")
	case p.Premium == nil:
		return models.OptionContract{}, fmt.Errorf("missing premium")
	case p.Expiry == nil:
		return models.OptionContract{}, fmt.Errorf("missing expiry")
	}

	optionType, err := models.ParseOptionType(*p.Type)
	if err != nil {
		return models.OptionContract{}, err
	}
	expiry, err := models.ParseDate(*p.Expiry)
	if err != nil {
		return models.OptionContract{}, err
	}
	contract := models.OptionContract{
		Type:    optionType,
		Strike:  *p.Strike,
		Premium: *p.Premium,
		Expiry:  expiry,
	}
	return contract, contract.Validate()
}

// decodeHeatmap validates a /heatmap body: axes, grid shape and required metrics.
func decodeHeatmap(body []byte) (*models.HeatmapResult, error) {
	var resp HeatmapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &DecodeError{Op: opFetchHeatmap, Reason: "invalid JSON", Err: err}
	}
	if isAbsent(resp.Heatmap) {
		if msg := resp.Message(); msg != "" {
			return nil, &DecodeError{Op: opFetchHeatmap, Reason: "service error: " + msg}
		}
		return nil, &DecodeError{Op: opFetchHeatmap, Reason: "missing heatmap"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resp.Heatmap, &fields); err != nil {
		return nil, &DecodeError{Op: opFetchHeatmap, Reason: "heatmap is not an object", Err: err}
	}
	for _, key := range []string{"x", "y", "z", "metrics"} {
		if isAbsent(fields[key]) {
			return nil, &DecodeError{Op: opFetchHeatmap, Reason: "missing heatmap." + key}
		}
	}

	result := &models.HeatmapResult{}
	if err := json.Unmarshal(fields["x"], &result.X); err != nil {
		return nil, &DecodeError{Op: opFetchHeatmap, Reason: "invalid x axis", Err: err}
	}
	if err := json.Unmarshal(fields["y"], &result.Y); err != nil {
		return nil, &DecodeError{Op: opFetchHeatmap, Reason: "invalid y axis", Err: err}
	}
	if len(result.X) == 0 || len(result.Y) == 0 {
		return nil, &DecodeError{Op: opFetchHeatmap, Reason: "empty axis"}
	}

	var grid [][]*float64
	if err := json.Unmarshal(fields["z"], &grid); err != nil {
		return nil, &DecodeError{Op: opFetchHeatmap, Reason: "invalid z grid", Err: err}
	}
	z, err := checkGrid(grid, len(result.Y), len(result.X))
	if err != nil {
		return nil, err
	}
	result.Z = z

	metrics, err := decodeMetrics(fields["metrics"])
	if err != nil {
		return nil, err
	}
	result.Metrics = metrics
	return result, nil
}

func checkGrid(grid [][]*float64, rows, cols int) ([][]float64, error) {
	if len(grid) != rows {
		return nil, &ShapeMismatchError{Rows: len(grid), WantRows: rows, WantCols: cols, Row: -1}
	}
	z := make([][]float64, rows)
	for i, row := range grid {
		if len(row) != cols {
			return nil, &ShapeMismatchError{Rows: len(grid), Cols: len(row), WantRows: rows, WantCols: cols, Row: i}
		}
		z[i] = make([]float64, cols)
		for j, cell := range row {
			if cell == nil {
				return nil, &DecodeError{Op: opFetchHeatmap, Reason: fmt.Sprintf("z[%d][%d] is null", i, j)}
			}
			z[i][j] = *cell
		}
	}
	return z, nil
}

func decodeMetrics(raw json.RawMessage) (models.Metrics, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return models.Metrics{}, &DecodeError{Op: opFetchHeatmap, Reason: "metrics is not an object", Err: err}
	}
	for _, key := range models.RequiredMetricKeys {
		if isAbsent(keys[key]) {
			return models.Metrics{}, &DecodeError{Op: opFetchHeatmap, Reason: "missing metric " + key}
		}
	}

	var metrics models.Metrics
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return models.Metrics{}, &DecodeError{Op: opFetchHeatmap, Reason: "invalid metrics", Err: err}
	}
	return metrics, nil
}
