package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"habitpulse/internal/recurrence"
	"habitpulse/internal/types"
)

// Validator wraps go-playground/validator with the domain tags used by
// request structs:
//
//	hhmm        "HH:mm" 24-hour time of day
//	weekdays    slice of ints, each 0..6
//	is_timezone IANA zone name loadable by time.LoadLocation
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError is one failed field, reported to clients under
// details.validation_errors.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return recurrence.ValidTimeOfDay(fl.Field().String())
	})
	_ = v.RegisterValidation("weekdays", validateWeekdays)
	_ = v.RegisterValidation("is_timezone", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if name == "" || strings.EqualFold(name, "local") {
			return false
		}
		_, err := time.LoadLocation(name)
		return err == nil
	})

	return &Validator{validate: v, logger: logger}
}

func validateWeekdays(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < f.Len(); i++ {
		d := f.Index(i)
		if !d.CanInt() {
			return false
		}
		if n := d.Int(); n < 0 || n > 6 {
			return false
		}
	}
	return true
}

// ValidateStruct returns nil or an *types.AppError whose code reflects the
// first failing field and whose details list every failure.
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings runs the tag validation and collects all
// failures without short-circuiting.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator misuse", "error", err)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeValidationInvalidPayload),
			Message: "request could not be validated",
		})
		return result
	}

	for _, fe := range verrs {
		code, msg := describeFieldError(fe)
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    string(code),
			Message: msg,
		})
	}
	return result
}

func describeFieldError(fe validator.FieldError) (types.ErrorCode, string) {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return types.ErrCodeValidationMissingField, field + " is required"
	case "max":
		return types.ErrCodeValidationFieldTooLong, field + " must be at most " + fe.Param() + " characters"
	case "hhmm":
		return types.ErrCodeValidationInvalidTime, field + " must be a 24-hour HH:mm time"
	case "weekdays":
		return types.ErrCodeValidationInvalidWeekdays, field + " must contain weekdays 0 (Sunday) to 6 (Saturday)"
	case "is_timezone":
		return types.ErrCodeValidationInvalidTimezone, field + " must be an IANA timezone"
	default:
		return types.ErrCodeValidationInvalidPayload, field + " failed " + fe.Tag() + " validation"
	}
}
