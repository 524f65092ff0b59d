package validation

import "unicode"

// PasswordPolicy returns an empty string when password is acceptable and the
// rejection reason otherwise.
type PasswordPolicy func(password string) string

// MinPasswordLength is enforced by DefaultPasswordPolicy.
const MinPasswordLength = 8

// DefaultPasswordPolicy requires MinPasswordLength characters with at least
// one letter and one digit.
func DefaultPasswordPolicy(password string) string {
	if len([]rune(password)) < MinPasswordLength {
		return "Password must be at least 8 characters"
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return "Password must contain at least one letter and one number"
	}
	return ""
}

// ValidatePassword checks password against DefaultPasswordPolicy.
func ValidatePassword(password string) Result {
	return ValidatePasswordWith(password, nil)
}

// ValidatePasswordWith checks password against policy, or the default policy
// when nil.
func ValidatePasswordWith(password string, policy PasswordPolicy) Result {
	if policy == nil {
		policy = DefaultPasswordPolicy
	}
	if password == "" {
		return fail("Password is required")
	}
	if reason := policy(password); reason != "" {
		return fail(reason)
	}
	return ok()
}
