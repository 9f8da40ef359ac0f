package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

// NewValidator returns a validator with the request tags used by this package registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	RegisterValidations(validate)
	return validate
}

// RegisterValidations adds the hhmm tag to an existing validator.
func RegisterValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := timeofday.Parse(fl.Field().String())
		return err == nil
	})
}
