// Package handler holds the JSON response helpers shared by every HTTP
// handler: one success shape, one error shape, one place that maps domain
// error codes to HTTP status codes.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/middleware"
)

// JSONResponse writes v as a JSON response with the given status code.
func JSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

// ErrorResponse writes a structured error response and logs it.
//
// Checkout validation failures are special-cased: the client gets 422 with
// the complete list of violations so the customer can fix the whole cart in
// one pass.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logger := middleware.GetLogger(r.Context())

	if domain.IsCartValidationError(err) {
		reasons := domain.ValidationReasons(err)
		logger.Info("cart validation failed",
			"reasons", len(reasons),
			"path", r.URL.Path)
		JSONResponse(w, http.StatusUnprocessableEntity, errorBody{
			Error: errorDetail{
				Code:    "cart_validation_failed",
				Message: "Some items in your cart are no longer available as requested",
				Reasons: reasons,
			},
		})
		return
	}

	code := domain.ErrorCode(err)
	status := statusForCode(code)

	attrs := []any{
		"error", err.Error(),
		"code", code,
		"status", status,
	}
	if op := domain.ErrorOp(err); op != "" {
		attrs = append(attrs, "op", op)
	}
	if status >= 500 {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	JSONResponse(w, status, errorBody{
		Error: errorDetail{
			Code:    code,
			Message: domain.ErrorMessage(err),
		},
	})
}

// statusForCode maps domain error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.EGONE:
		return http.StatusGone // 410
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}
