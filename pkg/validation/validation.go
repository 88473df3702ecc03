// Package validation wraps go-playground/validator with the application's
// error type.
package validation

import (
	"errors"
	"fmt"
	"strings"

	gvalidator "github.com/go-playground/validator/v10"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// ErrValidationFailed is the root of every validation error chain
var ErrValidationFailed = errors.New("struct validation failed")

var validate = gvalidator.New(gvalidator.WithRequiredStructEnabled())

// Struct validates v against its `validate` tags. Field failures are joined
// under ErrValidationFailed and wrapped in a VALIDATION_ERROR AppError.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return utils.WrapError(utils.ErrCodeValidation, "Validation failed", err)
	}

	errs := []error{ErrValidationFailed}
	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		errs = append(errs, fmt.Errorf("'%s': value '%v' does not meet the requirements for the '%s' validation",
			fieldErr.Namespace(), fieldErr.Value(), fieldErr.Tag()))
		fields = append(fields, fieldErr.Namespace())
	}

	return utils.WrapError(utils.ErrCodeValidation,
		"Invalid fields: "+strings.Join(fields, ", "), errors.Join(errs...))
}
