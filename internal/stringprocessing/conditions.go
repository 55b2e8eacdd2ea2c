package stringprocessing

import "strings"

// IsTruthy determines if a string represents a truthy value.
// It is used when boolean settings arrive as text (CLI arguments, env files).
//
// EVALUATION RULES (case-insensitive):
//   - Explicitly TRUTHY: 'true', '1', 'yes', 'on', 'enabled'
//   - Explicitly FALSY: 'false', '0', 'no', 'off', 'disabled'
//   - Empty strings: FALSY ("" or whitespace-only)
//   - Any other non-empty string: TRUTHY
func IsTruthy(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))

	switch value {
	case "":
		return false
	case "false", "0", "no", "off", "disabled":
		return false
	default:
		return true
	}
}
