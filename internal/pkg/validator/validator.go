package validator

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

type ValidationError struct {
	Field   string
	Message string
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var msgs []string
	for _, err := range v {
		msgs = append(msgs, err.Field+": "+err.Message)
	}
	return strings.Join(msgs, "; ")
}

// ToMap keys messages by field. A field reported twice keeps its first message.
func (v ValidationErrors) ToMap() map[string]string {
	result := make(map[string]string, len(v))
	for _, err := range v {
		if _, ok := result[err.Field]; !ok {
			result[err.Field] = err.Message
		}
	}
	return result
}

// Prefixed returns a copy with every field nested under prefix, e.g.
// "payment_date" becomes "payment.payment_date".
func (v ValidationErrors) Prefixed(prefix string) ValidationErrors {
	out := make(ValidationErrors, 0, len(v))
	for _, err := range v {
		out = append(out, ValidationError{Field: prefix + "." + err.Field, Message: err.Message})
	}
	return out
}

// IsEmpty checks if a string is empty after trimming whitespace.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// HasEmpty reports whether any value is empty after trimming whitespace.
func HasEmpty(values []string) bool {
	for _, v := range values {
		if IsEmpty(v) {
			return true
		}
	}
	return false
}

// MaxLength reports whether s has at most n characters.
func MaxLength(s string, n int) bool {
	return utf8.RuneCountInString(s) <= n
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email validation
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// Date validation
func IsValidDate(dateStr string) (time.Time, bool) {
	date, err := time.Parse("2006-01-02", dateStr)
	return date, err == nil
}

// Slice contains check
func IsInSlice(value string, slice []string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}
