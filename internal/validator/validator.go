package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
)

var (
	validate *validator.Validate
	initOnce sync.Once
)

// enum is implemented by the string enums in internal/types
type enum interface {
	Validate() error
}

// NewValidator returns the process wide validator. Besides the built-in tags it
// knows `enum`, which accepts only values whose Validate method succeeds, and it
// reports fields under their json names.
func NewValidator() *validator.Validate {
	initOnce.Do(func() {
		v := validator.New()

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})

		// decimals are validated through their string form so `required` sees
		// the amount rather than the zero struct
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})

		_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
			e, ok := fl.Field().Interface().(enum)
			return ok && e.Validate() == nil
		})

		validate = v
	})
	return validate
}

// ValidateRequest checks the validate tags of req. Failures are marked
// ErrValidation and list every offending field in the error details.
func ValidateRequest(req interface{}) error {
	err := NewValidator().Struct(req)
	if err == nil {
		return nil
	}

	details := map[string]any{}
	var fieldErrs validator.ValidationErrors
	if ierr.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			details[fe.Field()] = fieldMessage(fe)
		}
	}
	return ierr.WithError(err).
		WithHint("Request validation failed").
		WithReportableDetails(details).
		Mark(ierr.ErrValidation)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + fe.Param() + " is missing"
	case "enum":
		return "has an unsupported value"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}
