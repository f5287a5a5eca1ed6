package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"duck-export/internal/domain"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var invalidQuery *domain.InvalidQueryError
	var validation *domain.ValidationError
	var missingField *domain.MissingFieldError
	var notFound *domain.NotFoundError
	var dataSource *domain.DataSourceError
	var ioErr *domain.IOError

	switch {
	case errors.As(err, &invalidQuery), errors.As(err, &validation), errors.As(err, &missingField):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &dataSource):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ioErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as an ErrorResponse. Server-side failures get a
// generic message; client errors carry the error text.
func writeError(w http.ResponseWriter, err error) {
	code := httpStatusFromDomainError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, code, ErrorResponse{Code: code, Message: msg})
}
