package services

import (
	"strings"
	"unicode"
)

// PhoneNormalizer rewrites raw phone input into the international form
// the WhatsApp channel requires. The rules are deployment-region
// specific and come from configuration.
type PhoneNormalizer struct {
	CountryCode string
	TrunkPrefix string
}

// Normalize strips non-digit characters, replaces the local trunk
// prefix with the country code, and prepends the country code when it
// is missing entirely.
func (n PhoneNormalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) < 7 {
		return "", newError(KindRecipient, "invalid phone number %q", raw)
	}

	if strings.HasPrefix(digits, n.CountryCode) {
		return digits, nil
	}

	if n.TrunkPrefix != "" && strings.HasPrefix(digits, n.TrunkPrefix) {
		return n.CountryCode + digits[len(n.TrunkPrefix):], nil
	}

	return n.CountryCode + digits, nil
}
