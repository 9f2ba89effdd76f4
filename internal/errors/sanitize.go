package errors

import "strings"

// sanitizeRules maps error-text substrings to the canonical short message
// the HTTP surface is allowed to echo. Raw exception text never reaches a
// client; the full detail stays in logs and the error table.
var sanitizeRules = []struct {
	substr  string
	message string
}{
	{"access denied", "Access denied"},
	{"permission denied", "Access denied"},
	{"not found", "Resource not found"},
	{"no such file", "Resource not found"},
	{"timed out", "Request timed out"},
	{"deadline exceeded", "Request timed out"},
	{"connection", "Connection error"},
	{"validation", "Validation error"},
}

// Sanitize maps an internal error to a short canonical message safe for
// API responses.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNotFound:
		return "Resource not found"
	case KindAccessDenied:
		return "Access denied"
	case KindTimeout:
		return "Request timed out"
	case KindValidation:
		// Validation messages name the missing fields and are written by
		// us, not by an external system; they are safe to pass through.
		var pe *Error
		if As(err, &pe) {
			return "Validation error: " + pe.Message
		}
		return "Validation error"
	}
	lower := strings.ToLower(err.Error())
	for _, rule := range sanitizeRules {
		if strings.Contains(lower, rule.substr) {
			return rule.message
		}
	}
	return "Internal error"
}
