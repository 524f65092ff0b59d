package validation

import (
	"strconv"
	"unicode/utf8"

	"github.com/sabha-admin/sabha/internal/audit"
)

// Guard runs validators and reports each failure to the audit log. The raw
// value is never recorded; only its length and the validator kind are.
type Guard struct {
	recorder audit.Recorder
	policy   PasswordPolicy
}

// NewGuard constructs a Guard. A nil recorder discards events; a nil policy
// uses DefaultPasswordPolicy.
func NewGuard(recorder audit.Recorder, policy PasswordPolicy) *Guard {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Guard{recorder: recorder, policy: policy}
}

// Email validates an email address field.
func (g *Guard) Email(actor, field, value, label string) Result {
	return g.report(actor, field, "email", value, ValidateEmail(value, label))
}

// Phone validates a phone number field.
func (g *Guard) Phone(actor, field, value string) Result {
	return g.report(actor, field, "phone", value, ValidatePhone(value))
}

// Text validates and sanitizes a free-text field.
func (g *Guard) Text(actor, field, value string, maxLength int, required bool) Result {
	return g.report(actor, field, "text", value, ValidateText(value, maxLength, required))
}

// Password validates a password with the guard's policy.
func (g *Guard) Password(actor, field, value string) Result {
	return g.report(actor, field, "password", value, ValidatePasswordWith(value, g.policy))
}

// File validates an upload and reports failures as file_upload_failure.
func (g *Guard) File(actor, field string, file File, allowedTypes []string, maxSize int64) Result {
	res := ValidateFile(file, allowedTypes, maxSize)
	if !res.Valid {
		g.recorder.Record(audit.NewEvent(audit.EventFileUploadFailure, actor, field, map[string]string{
			"field":     field,
			"file_name": res.Sanitized,
			"mime_type": file.ContentType,
			"size":      strconv.FormatInt(file.Size, 10),
			"reason":    res.Error,
		}))
	}
	return res
}

// Struct validates a tagged form struct and reports every failing field.
func (g *Guard) Struct(actor string, form any) map[string]string {
	err := Struct(form)
	if err == nil {
		return map[string]string{}
	}
	errs := FieldErrors(err)
	for field, reason := range errs {
		g.recorder.Record(audit.NewEvent(audit.EventValidationFailure, actor, field, map[string]string{
			"field":  field,
			"kind":   "struct",
			"reason": reason,
		}))
	}
	return errs
}

// Reject reports a failure found by a caller-side rule and returns the
// matching invalid Result.
func (g *Guard) Reject(actor, field, kind, reason, value string) Result {
	return g.report(actor, field, kind, value, fail(reason))
}

func (g *Guard) report(actor, field, kind, value string, res Result) Result {
	if !res.Valid {
		g.recorder.Record(audit.ValidationFailure(actor, field, kind, res.Error, utf8.RuneCountInString(value)))
	}
	return res
}
