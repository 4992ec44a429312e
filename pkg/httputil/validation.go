package httputil

import (
	"github.com/go-playground/validator/v10"

	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("nif", validNIF)
}

// Validate validates a struct using go-playground/validator
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		details := make(map[string]string)

		for _, e := range validationErrors {
			details[e.Field()] = formatValidationError(e)
		}

		return errors.Validation(details)
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "nif":
		return "must be a valid Portuguese tax number"
	default:
		return "invalid value"
	}
}

// validNIF accepts a nine-digit Portuguese NIF with a correct mod-11 check
// digit (remainders 10 and 11 map to 0).
func validNIF(fl validator.FieldLevel) bool {
	nif := fl.Field().String()
	if len(nif) != 9 {
		return false
	}

	sum := 0
	for i := 0; i < 8; i++ {
		d := nif[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += int(d-'0') * (9 - i)
	}
	last := nif[8]
	if last < '0' || last > '9' {
		return false
	}

	check := 11 - sum%11
	if check >= 10 {
		check = 0
	}
	return int(last-'0') == check
}

// RegisterCustomValidation registers a custom validation function
func RegisterCustomValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}
