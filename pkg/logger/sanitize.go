package logger

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameters whose presence redacts the whole query in request logs
var sensitiveParams = []string{"token", "secret", "password", "email", "user_id", "auth"}

// SanitizedEmail masks an email address for logging: the first character of the
// local part and the top-level domain stay readable ("a****@*******.com").
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	if dot := strings.LastIndex(domain, "."); dot > 0 {
		masked := strings.Map(func(r rune) rune {
			if r == '.' {
				return r
			}
			return '*'
		}, domain[:dot])
		domain = masked + domain[dot:]
	}

	return local + "@" + domain
}

// SanitizeQueryString reports whether rawQuery carries a sensitive parameter
// and should be left out of request logs
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// unparseable queries are redacted
		return true
	}

	for key := range values {
		key = strings.ToLower(key)
		for _, p := range sensitiveParams {
			if strings.Contains(key, p) {
				return true
			}
		}
	}
	return false
}
