package newsletter

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lowercases an address and checks the
// local@domain.tld shape.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", newError(KindValidation, "email is required", nil)
	}
	if len(email) > 320 || !emailPattern.MatchString(email) {
		return "", newError(KindValidation, "invalid email address", nil)
	}
	return email, nil
}
