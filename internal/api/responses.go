// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/kgrec/internal/logging"
	"github.com/tomtom215/kgrec/internal/recommend"
	"github.com/tomtom215/kgrec/internal/validation"
)

// APIResponse wraps every JSON body.
//
//	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
//	{"status": "error", "error": {"code": "VALIDATION_ERROR", "message": "..."}, ...}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes the response itself.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is a machine-readable error.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// sanitizeLogValue escapes control characters so request data cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}, started time.Time, cached bool) {
	respondJSON(w, status, &APIResponse{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			Timestamp:   time.Now().UTC(),
			RequestID:   logging.RequestIDFromContext(r.Context()),
			QueryTimeMS: time.Since(started).Milliseconds(),
			Cached:      cached,
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondAPIError(w, status, &APIError{Code: code, Message: message}, err)
}

func respondAPIError(w http.ResponseWriter, status int, apiErr *APIError, err error) {
	if err != nil {
		level := logging.Warn
		if status >= http.StatusInternalServerError {
			level = logging.Error
		}
		level().Str("code", apiErr.Code).
			Int("status", status).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	respondJSON(w, status, &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    apiErr,
	})
}

func validationAPIError(verr *validation.RequestValidationError) *APIError {
	e := verr.ToAPIError()
	return &APIError{Code: e.Code, Message: e.Message, Details: e.Details}
}

// classifyError maps an engine or store error to an HTTP status and body.
func classifyError(err error) (int, *APIError) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, validationAPIError(verr)
	}
	if errors.Is(err, recommend.ErrDishNotFound) {
		return http.StatusNotFound, &APIError{Code: "NOT_FOUND", Message: "Dish not found"}
	}

	kind := recommend.KindOf(err)
	switch kind {
	case recommend.KindValidation:
		return http.StatusBadRequest, &APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	case recommend.KindConfiguration:
		if errors.Is(err, recommend.ErrModelNotLoaded) {
			return http.StatusInternalServerError, &APIError{Code: "MODEL_NOT_LOADED", Message: "No embedding model is loaded"}
		}
		return http.StatusInternalServerError, &APIError{Code: "CONFIGURATION_ERROR", Message: "Recommender is misconfigured"}
	case recommend.KindDataIncomplete:
		return http.StatusServiceUnavailable, &APIError{Code: "DATA_INCOMPLETE", Message: "Not enough data to build recommendations"}
	case recommend.KindDependencyUnavailable:
		return http.StatusServiceUnavailable, &APIError{Code: "DEPENDENCY_UNAVAILABLE", Message: "A backing store is unavailable"}
	default:
		return http.StatusInternalServerError, &APIError{Code: "INTERNAL_ERROR", Message: "Internal server error"}
	}
}

func respondFromError(w http.ResponseWriter, err error) {
	status, apiErr := classifyError(err)
	respondAPIError(w, status, apiErr, err)
}
