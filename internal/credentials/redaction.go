package credentials

import "regexp"

// Redactor replaces credential-shaped substrings of a string with
// "[REDACTED]", adapted from the teacher's logging-safety helper. It acts
// only where a caller invokes RedactString; nothing in this module calls it.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor builds a Redactor tuned to the shapes this module's
// credentials actually take: cookie headers, bearer tokens, and the
// platform session tokens Buff163/Youpin898 issue.
func NewRedactor() *Redactor {
	patterns := []string{
		`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
		`(?i)cookie:\s*[^\r\n]+`,
		`(?i)(?:token|session|csrf)["\s]*[:=]["\s]*[^\s"',}]+`,
	}
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return &Redactor{patterns: compiled, replacement: "[REDACTED]"}
}

// RedactString strips any credential-shaped substring from input.
func (r *Redactor) RedactString(input string) string {
	result := input
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}
