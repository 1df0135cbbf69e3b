package config

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	wardenerrors "github.com/wardenbot/warden/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance configures and returns the shared validator instance
// used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
			_, err := zerolog.ParseLevel(strings.ToLower(fl.Field().String()))
			return err == nil
		})

		_ = v.RegisterValidation("prefix", func(fl validator.FieldLevel) bool {
			prefix := fl.Field().String()
			return prefix != "" && !strings.ContainsAny(prefix, " \t\n")
		})

		validateInst = v
	})
	return validateInst
}

// Validate checks the configuration model.
func Validate(cfg *Config) error {
	if err := validatorInstance().Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return wardenerrors.NewValidationError(first.Field(), "failed '"+first.Tag()+"' validation", err)
		}
		return wardenerrors.NewValidationError("", err.Error(), err)
	}
	return nil
}
