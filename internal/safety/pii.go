package safety

import (
	"regexp"
	"strings"
)

// piiPattern is one detector run over outgoing drafts. Matches that fail
// validate are discarded.
type piiPattern struct {
	kind     string
	re       *regexp.Regexp
	validate func(match string) bool
}

var piiPatterns = []piiPattern{
	{
		kind: "EMAIL",
		re:   regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`),
	},
	{
		kind:     "CREDIT_CARD",
		re:       regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		validate: func(m string) bool { return luhnValid(stripNonDigits(m)) },
	},
	{
		kind: "PHONE",
		re:   regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?|\b)\(?\d{2,4}\)?[\s.-]?\d{3,4}[\s.-]?\d{3,4}\b`),
		validate: func(m string) bool {
			n := len(stripNonDigits(m))
			return n >= 9 && n <= 15
		},
	},
}

// piiMatch is a single accepted detection.
type piiMatch struct {
	Kind  string
	Value string
}

// findPII returns the first personal-data match in text. Emails on one of
// allowedDomains are brand contact addresses and are not reported.
func findPII(text string, allowedDomains []string) (piiMatch, bool) {
	for _, p := range piiPatterns {
		for _, m := range p.re.FindAllString(text, -1) {
			if p.validate != nil && !p.validate(m) {
				continue
			}
			if p.kind == "EMAIL" && emailAllowed(m, allowedDomains) {
				continue
			}
			return piiMatch{Kind: p.kind, Value: m}, true
		}
	}
	return piiMatch{}, false
}

func emailAllowed(addr string, domains []string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || len(domains) == 0 {
		return false
	}
	return hostAllowed(addr[at+1:], domains)
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
