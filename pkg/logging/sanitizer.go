package logging

import (
	"regexp"
)

const (
	// MaxStatementLogLength bounds statements echoed into log lines.
	MaxStatementLogLength = 120
	// RedactedText replaces sensitive values in sanitized output.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// api keys in key=value form
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token)=[A-Za-z0-9-_]{16,}`)

	// user:pass@host inside connection URIs
	uriCredsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeURI strips credentials from a connection URI before logging.
func SanitizeURI(uri string) string {
	if uri == "" {
		return ""
	}
	s := passwordPattern.ReplaceAllString(uri, "${1}="+RedactedText)
	return uriCredsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError sanitizes an error message that may embed credentials,
// typically errors bubbling up from database drivers.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return uriCredsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeStatement truncates a query statement for logging and removes
// credential-shaped substrings.
func SanitizeStatement(stmt string) string {
	if stmt == "" {
		return ""
	}
	s := stmt
	if len(s) > MaxStatementLogLength {
		s = s[:MaxStatementLogLength] + "..."
	}
	return passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
}
