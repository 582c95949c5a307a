package handler

import (
	"github.com/go-playground/validator/v10"

	"github.com/poplist/api/internal/utils"
)

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct{ v *validator.Validate }

// NewValidator builds the request validator with the custom "username" rule.
func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return utils.ValidUsername(fl.Field().String())
	})
	return &Validator{v: v}
}

func (val *Validator) Validate(i interface{}) error {
	return val.v.Struct(i)
}
