package dto

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"audience/internal/domain/filter"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags used by the DTOs:
// filter_operator and profile_type.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		err = registerOn(v)
	})
	return err
}

func registerOn(v *validator.Validate) error {
	if err := v.RegisterValidation("filter_operator", validateFilterOperator); err != nil {
		return fmt.Errorf("register filter_operator: %w", err)
	}
	if err := v.RegisterValidation("profile_type", validateProfileType); err != nil {
		return fmt.Errorf("register profile_type: %w", err)
	}
	return nil
}

func validateFilterOperator(fl validator.FieldLevel) bool {
	return filter.IsOperator(fl.Field().String())
}

func validateProfileType(fl validator.FieldLevel) bool {
	return filter.ProfileType(fl.Field().String()).Valid()
}
