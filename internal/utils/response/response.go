// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the standard envelope for status-style responses.
//
//	{ "status": "error", "message": "The given data was invalid.", "errors": ["..."] }
type Response struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// Status string constants. Use these instead of raw string literals so
// a typo is caught by the compiler rather than silently sending "eroor".
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GeneralError wraps any Go error into the error envelope.
func GeneralError(err error) Response {
	return Response{Status: StatusError, Message: err.Error()}
}

// Error builds an error envelope with a fixed message and optional details.
func Error(message string, details ...string) Response {
	return Response{Status: StatusError, Message: message, Errors: details}
}

// ValidationError converts validator.ValidationErrors into one message per
// failing field.
//
//	{ "status": "error", "message": "The given data was invalid.",
//	  "errors": ["field name is required", "field email must be a valid email address"] }
func ValidationError(errs validator.ValidationErrors) Response {
	messages := make([]string, 0, len(errs))

	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			messages = append(messages, fmt.Sprintf("field %s is required", e.Field()))
		case "email":
			messages = append(messages, fmt.Sprintf("field %s must be a valid email address", e.Field()))
		case "max":
			messages = append(messages, fmt.Sprintf("field %s may not be greater than %s characters", e.Field(), e.Param()))
		case "min":
			messages = append(messages, fmt.Sprintf("field %s must be at least %s characters", e.Field(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return Response{
		Status:  StatusError,
		Message: "The given data was invalid.",
		Errors:  messages,
	}
}

// Summary joins the detail list into one line, for logs.
func (r Response) Summary() string {
	if len(r.Errors) == 0 {
		return r.Message
	}
	return r.Message + " " + strings.Join(r.Errors, ", ")
}
