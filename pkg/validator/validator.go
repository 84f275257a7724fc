package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/logger"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Validator wraps go-playground/validator with field names taken from json tags.
type Validator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func New(log *logger.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("scan_token", validateScanToken); err != nil {
		log.Fatal("Failed to register 'scan_token' validator", "error", err)
	}

	return &Validator{
		validate: v,
		logger:   log,
	}
}

// validateScanToken accepts any payload that still has content once the
// surrounding whitespace a scanner appends is trimmed. Interior control
// characters are rejected; interior spaces are kept for formatted ISBNs.
func validateScanToken(fl validator.FieldLevel) bool {
	token := strings.TrimSpace(fl.Field().String())
	if token == "" {
		return false
	}
	for _, r := range token {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func (v *Validator) Validate(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

// ValidateRequest validates s and converts failures into a VALIDATION_ERROR AppError.
func (v *Validator) ValidateRequest(s any, what string) error {
	err := v.Validate(s)
	if err == nil {
		return nil
	}

	details := map[string]any{}
	var validationErrs ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			details[e.Field] = e.Message
		}
	} else {
		details["error"] = err.Error()
	}

	v.logger.Debug("Request validation failed", "request", what, "error", err)
	return apperrors.Validation(fmt.Sprintf("Invalid %s", what), details)
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required", "required_if":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", err.Field(), err.Param())
		case "numeric":
			message = fmt.Sprintf("%s must contain digits only", err.Field())
		case "isbn":
			message = fmt.Sprintf("%s must be a valid ISBN-10 or ISBN-13", err.Field())
		case "ltefield":
			message = fmt.Sprintf("%s must not exceed %s", err.Field(), err.Param())
		case "scan_token":
			message = fmt.Sprintf("%s must be a code without control characters", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
