// Package redact strips credential material from document text before it is
// chunked, embedded, or stored.
//
// Ingested documents pass through third-party embedding APIs and land in a
// persistent vector store, so leaked tokens would otherwise be copied into
// both. The rules target self-identifying token formats; ordinary prose is
// left alone.
package redact

import "regexp"

type rule struct {
	id string
	re *regexp.Regexp
}

var rules = []rule{
	{
		id: "aws-access-key-id",
		re: regexp.MustCompile(`\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|ASIA)[A-Z0-9]{16}\b`),
	},
	{
		id: "github-token",
		re: regexp.MustCompile(`\bgh[poushr]_[A-Za-z0-9]{36,255}\b`),
	},
	{
		id: "slack-token",
		re: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
	},
	{
		id: "stripe-key",
		re: regexp.MustCompile(`\b[rs]k_live_[A-Za-z0-9]{20,}\b`),
	},
	{
		id: "openai-key",
		re: regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
	},
	{
		id: "private-key",
		re: regexp.MustCompile(`(?s)-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----.*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`),
	},
}

// Scrubber detects and replaces secrets in text.
type Scrubber struct {
	rules []rule
}

// New creates a Scrubber with the default rule set.
func New() *Scrubber {
	return &Scrubber{rules: rules}
}

// Scrub replaces every match with a [REDACTED:<rule>] marker and reports how
// many replacements were made. Text without secrets is returned unchanged.
func (s *Scrubber) Scrub(text string) (string, int) {
	total := 0
	for _, r := range s.rules {
		matches := r.re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		total += len(matches)
		text = r.re.ReplaceAllString(text, "[REDACTED:"+r.id+"]")
	}
	return text, total
}
