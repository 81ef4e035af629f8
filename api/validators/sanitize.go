package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, drops control characters and caps it at maxLen
// runes. maxLen <= 0 disables the cap.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		return string([]rune(cleaned)[:maxLen])
	}
	return cleaned
}

// SanitizeEmail normalizes an address before it is handed to Paddle as the
// checkout customer.
func SanitizeEmail(input string, maxLen int) string {
	return strings.ToLower(SanitizeString(input, maxLen))
}
