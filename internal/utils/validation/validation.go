// Package validation holds the shared go-playground validator.
//
// The validator caches struct metadata, so one instance is reused for the
// whole process. Field names in errors are the JSON names ("study_course"),
// not the Go names ("StudyCourse").
package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Struct validates s against its validate:"..." tags. A failure is always
// a validator.ValidationErrors.
func Struct(s any) error {
	return validate.Struct(s)
}
