package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxTextLength applies when ValidateText receives a non-positive limit.
const DefaultMaxTextLength = 255

// ErrValidationFailure is matched by every *Error.
var ErrValidationFailure = errors.New("validation failed")

// Error carries the reason an input was rejected.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Is makes errors.Is(err, ErrValidationFailure) true.
func (e *Error) Is(target error) bool {
	return target == ErrValidationFailure
}

// Result is the outcome of a validator. Error is set iff Valid is false;
// Sanitized is set only by validators that run a sanitization step.
type Result struct {
	Valid     bool
	Error     string
	Sanitized string
}

// Err converts an invalid result into an *Error for field.
func (r Result) Err(field string) error {
	if r.Valid {
		return nil
	}
	return &Error{Field: field, Reason: r.Error}
}

func ok() Result { return Result{Valid: true} }

func fail(reason string) Result { return Result{Error: reason} }

var (
	validate     = validator.New()
	phonePattern = regexp.MustCompile(`^\+?[0-9\s\-()]{10,15}$`)
)

// ValidateEmail checks the standard email shape. label names the field in the
// failure message.
func ValidateEmail(input, label string) Result {
	if label == "" {
		label = "Email"
	}
	value := strings.TrimSpace(input)
	if value == "" {
		return fail(label + " is required")
	}
	if err := validate.Var(value, "email"); err != nil {
		return fail(label + " must be a valid email address")
	}
	return ok()
}

// ValidatePhone accepts digits, spaces, hyphens and parentheses, 10 to 15
// characters, with an optional leading plus.
func ValidatePhone(input string) Result {
	value := strings.TrimSpace(input)
	if value == "" {
		return fail("Phone number is required")
	}
	if !phonePattern.MatchString(value) {
		return fail("Phone number must be 10-15 digits and may contain spaces, hyphens or parentheses")
	}
	return ok()
}

// ValidateText sanitizes input and checks its length against [1, maxLength]
// when required, or [0, maxLength] otherwise.
func ValidateText(input string, maxLength int, required bool) Result {
	if maxLength <= 0 {
		maxLength = DefaultMaxTextLength
	}
	sanitized := strings.TrimSpace(SanitizeText(input))
	length := utf8.RuneCountInString(sanitized)
	if required && length == 0 {
		return Result{Error: "This field is required", Sanitized: sanitized}
	}
	if length > maxLength {
		return Result{Error: fmt.Sprintf("Must be at most %d characters", maxLength), Sanitized: sanitized}
	}
	return Result{Valid: true, Sanitized: sanitized}
}

// FieldErrors maps validator/v10 struct errors to field -> reason.
func FieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["general"] = err.Error()
		}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = describeTag(fe)
	}
	return out
}

// Struct validates a tagged struct with the shared validator instance.
func Struct(v any) error {
	return validate.Struct(v)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}
