package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orunkhq/orunk/pkg/binlookup"
	"github.com/orunkhq/orunk/pkg/download"
	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/license"
	"github.com/orunkhq/orunk/pkg/payment"
	"github.com/orunkhq/orunk/pkg/plan"
)

// Module-local sentinels for request handling.
var (
	errUnauthenticated = errors.New("billing: authentication required")
	errForbidden       = errors.New("billing: not allowed")
	errBadRequest      = errors.New("billing: bad request")
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func respondErrorCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
	})
}

func respondError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
	})
}

// classify maps domain errors onto the envelope's stable codes.
// Anything unrecognized is an internal error and keeps its detail out
// of the response.
func classify(err error) (status int, code, message string) {
	var transition *entitlement.InvalidTransitionError

	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, "unauthorized", "authentication required"
	case errors.Is(err, errForbidden), errors.Is(err, license.ErrKeyInactive):
		return http.StatusForbidden, "unauthorized", "not allowed"

	case errors.Is(err, errBadRequest),
		errors.Is(err, binlookup.ErrInvalidBIN),
		errors.Is(err, license.ErrInvalidSiteURL),
		errors.Is(err, entitlement.ErrFeatureMismatch),
		errors.Is(err, entitlement.ErrPlanInactive),
		errors.Is(err, payment.ErrPlanNotPurchasable),
		errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest, "validation_error", err.Error()

	case errors.Is(err, entitlement.ErrNotFound),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, license.ErrActivationNotFound),
		errors.Is(err, binlookup.ErrBINNotFound),
		errors.Is(err, download.ErrNoArtifact),
		errors.Is(err, payment.ErrUnknownGateway),
		errors.Is(err, payment.ErrNoWebhook):
		return http.StatusNotFound, "not_found", err.Error()

	case errors.As(err, &transition),
		errors.Is(err, entitlement.ErrAlreadyActive),
		errors.Is(err, entitlement.ErrNotPending),
		errors.Is(err, entitlement.ErrNotActive),
		errors.Is(err, entitlement.ErrSwitchAlreadyPending),
		errors.Is(err, entitlement.ErrNoSwitchPending),
		errors.Is(err, entitlement.ErrPlanUnchanged),
		errors.Is(err, entitlement.ErrNotRenewable),
		errors.Is(err, download.ErrNotAccessible):
		return http.StatusConflict, "conflict", err.Error()

	case errors.Is(err, license.ErrActivationLimitReached):
		return http.StatusConflict, "limit_reached", err.Error()

	case errors.Is(err, binlookup.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "gateway_error", "upstream lookup unavailable"

	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}
