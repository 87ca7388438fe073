package logger

import (
	"regexp"
	"strings"
	"unicode"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// RedactEmail keeps the first character of the mailbox and the domain, so
// log lines stay useful for spotting a bouncing domain:
// "jane.doe@acme.com" -> "j***@acme.com".
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" || domain == "" {
		return "[redacted]"
	}
	return local[:1] + "***@" + domain
}

// RedactPhone masks every digit but the last two.
func RedactPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	var b strings.Builder
	seen := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			seen++
			if seen <= digits-2 {
				b.WriteByte('*')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// redactPIIValue masks contact channels of people: email and address fields
// by key, phone fields by key, and any email embedded in free text.
func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email"), strings.Contains(key, "address"), key == "to":
		if strings.Contains(val, "@") {
			return RedactEmail(val)
		}
		return val
	case strings.Contains(key, "phone"):
		return RedactPhone(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
