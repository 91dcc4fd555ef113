package logging

import "strings"

// Email keeps the first two characters of the local part.
func Email(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}
	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}
	return local + "@" + domain
}

// Token hides a credential but keeps a short prefix so two tokens can be told
// apart in logs.
func Token(s string) string {
	if len(s) <= 8 {
		return "[REDACTED]"
	}
	return s[:4] + "…[REDACTED]"
}
