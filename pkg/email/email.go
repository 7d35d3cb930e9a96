package email

import (
	"strings"
	"unicode"
)

// GreetingName picks the name to address a user by in outbound mail: the
// stored display name when present, else a name derived from the address
// local part, else "there".
func GreetingName(name, address string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if derived := DeriveNameFromAddress(address); derived != "" {
		return derived
	}
	return "there"
}

// DeriveNameFromAddress extracts a presentable first name from the local part
// of an email address ("ann.smith@x.com" -> "Ann"). Returns "" when nothing
// usable remains.
func DeriveNameFromAddress(address string) string {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return ""
	}
	return capitalize(parts[0])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
