package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// maxBodyBytes bounds request bodies. A full-length supplied embedding is
// well under this.
const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a single JSON object from the request body into dst.
// Oversized bodies also close the connection when w is the server's writer.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Validationf("body", "must not exceed %d bytes", tooLarge.Limit)
		}
		return domain.Validationf("body", "invalid JSON: %v", err)
	}
	if dec.More() {
		return domain.Validationf("body", "trailing data after JSON object")
	}
	return nil
}

// statusFor maps an error from the search engine to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrMalformedCursor):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDimension):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusBadGateway:
		return "dimension"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusServiceUnavailable:
		return "upstream"
	default:
		return "internal"
	}
}

// failWith logs err when it is the server's fault and writes the mapped
// error response. Caller mistakes are echoed back verbatim.
func failWith(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusBadRequest {
		writeError(w, status, err.Error())
		return
	}
	logger.ErrorContext(r.Context(), fmt.Sprintf("handler: %s failed", op),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	writeError(w, status, http.StatusText(status))
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("handler", handler))
}
