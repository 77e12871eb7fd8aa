// Package handlers holds helpers shared by the resource handler packages.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/student-records-api/internal/logger"
	"github.com/aanand-mishra/student-records-api/internal/utils/request"
	"github.com/aanand-mishra/student-records-api/internal/utils/response"
	"github.com/aanand-mishra/student-records-api/internal/utils/validation"
)

// InternalError is the message sent with every 500; details stay in logs.
const InternalError = "Internal Server Error"

// Bind decodes the JSON body into v and validates it. On failure it writes
// the response itself (400 for an unreadable body, 422 for rule
// violations) and returns false.
func Bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := request.DecodeJSON(r, v); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}

	err := validation.Struct(v)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}

	resp := response.ValidationError(verrs)
	logger.FromContext(r.Context()).Info("validation failed", slog.String("errors", resp.Summary()))
	response.WriteJSON(w, http.StatusUnprocessableEntity, resp)
	return false
}

// Internal logs err and writes a generic 500.
func Internal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.FromContext(r.Context()).Error(msg, slog.String("error", err.Error()))
	response.WriteJSON(w, http.StatusInternalServerError, response.Error(InternalError))
}
