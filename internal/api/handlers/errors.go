package handlers

import (
	"errors"
	"net/http"

	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
	"github.com/irfndi/optionscope/internal/pricing"
	"github.com/irfndi/optionscope/internal/selection"
	"github.com/irfndi/optionscope/internal/services"
)

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	var invalidIndex *selection.InvalidIndexError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case orchestrator.IsInvalidTicker(err),
		errors.As(err, &invalidIndex),
		errors.Is(err, models.ErrUnknownModel):
		return http.StatusBadRequest
	case orchestrator.IsIllegalTransition(err),
		orchestrator.IsSuperseded(err):
		return http.StatusConflict
	case pricing.IsNetworkError(err),
		pricing.IsDecodeError(err),
		pricing.IsShapeMismatchError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorCode names the error class for clients that branch on it.
func errorCode(err error) string {
	var invalidIndex *selection.InvalidIndexError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return "session_not_found"
	case orchestrator.IsInvalidTicker(err):
		return "invalid_ticker"
	case errors.As(err, &invalidIndex):
		return "invalid_index"
	case errors.Is(err, models.ErrUnknownModel):
		return "unknown_model"
	case orchestrator.IsIllegalTransition(err):
		return "illegal_transition"
	case orchestrator.IsSuperseded(err):
		return "superseded"
	case pricing.IsShapeMismatchError(err):
		return "shape_mismatch"
	case pricing.IsDecodeError(err):
		return "decode_error"
	case pricing.IsNetworkError(err):
		return "network_error"
	default:
		return "internal_error"
	}
}
