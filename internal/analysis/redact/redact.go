// Package redact scrubs common PII from message text so that logs and
// derived artifacts never carry raw identifiers. Regex-based; a real
// deployment would layer a DLP service on top.
package redact

import "regexp"

var patterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PHONE", regexp.MustCompile(`\b(\+?\d{1,3}[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)},
	{"ID", regexp.MustCompile(`(?i)\b(ID|MRN)[:#]?\s*\d+\b`)},
}

// Scrub replaces phone numbers, emails, SSNs and chart identifiers with
// bracketed placeholders. Order matters: SSNs would otherwise match the
// phone pattern.
func Scrub(text string) string {
	if text == "" {
		return text
	}
	out := text
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, "["+p.label+" REDACTED]")
	}
	return out
}
