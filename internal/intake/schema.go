package intake

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

// PhoneMessage is shown when the emergency contact number is malformed.
const PhoneMessage = "Please enter a valid phone number"

var (
	phoneShape = regexp.MustCompile(`^\+?[0-9\s\-()]+$`)
	nonDigit   = regexp.MustCompile(`[^0-9]`)
)

// FieldError is a schema failure on one field, keyed by its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every field failure found in a form.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "intake: invalid form: " + strings.Join(parts, "; ")
}

// Field returns the failure recorded for path, if any.
func (v ValidationErrors) Field(path string) (FieldError, bool) {
	for _, fe := range v {
		if fe.Field == path {
			return fe, true
		}
	}
	return FieldError{}, false
}

// Validate runs the whole-form schema. Missing medicalHistory, tests,
// smoking and familyHistory take their all-false defaults rather than
// failing, so in practice the schema rejects malformed values only.
func Validate(data FormData) ValidationErrors {
	var errs ValidationErrors

	for _, id := range slices.Sorted(maps.Keys(data.TestDetails)) {
		if !id.Known() {
			errs = append(errs, FieldError{Field: "testDetails." + string(id), Message: "Unknown test"})
		}
	}

	if data.NOK != nil {
		if phone := strings.TrimSpace(data.NOK.Phone); phone != "" && !ValidPhone(phone) {
			errs = append(errs, FieldError{Field: "nok.phone", Message: PhoneMessage})
		}
	}

	return errs
}

// ValidPhone reports whether s looks like a phone number: an optional
// leading +, then 10 to 15 digits with spaces, hyphens or parentheses
// allowed between them.
func ValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if !phoneShape.MatchString(s) {
		return false
	}
	digits := len(nonDigit.ReplaceAllString(s, ""))
	return digits >= 10 && digits <= 15
}
