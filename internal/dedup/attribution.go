package dedup

import (
	"regexp"
	"strings"
)

// sourceAttributionPatterns detect when an article is relaying another
// outlet's reporting. A relayed report is not an independent source: crediting
// it to the original outlet keeps corroboration counts honest.
var sourceAttributionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)according to (Reuters|AP|AFP|Bloomberg|OCHA|UNICEF|WFP|the Red Cross|state media)`),
	regexp.MustCompile(`(?i)(Reuters|AP|AFP|Bloomberg|OCHA) reports?`),
	regexp.MustCompile(`(?i)reported by (Reuters|AP|AFP|Bloomberg)`),
	regexp.MustCompile(`(?i)citing (Reuters|AP|AFP|Bloomberg|local authorities)`),
	regexp.MustCompile(`(?i)\((Reuters|AP|AFP|Bloomberg)\)`),
}

// AttributedSource returns the original outlet a text credits, if any.
func AttributedSource(text string) (string, bool) {
	for _, pattern := range sourceAttributionPatterns {
		if matches := pattern.FindStringSubmatch(text); len(matches) > 1 {
			return strings.ToLower(matches[1]), true
		}
	}
	return "", false
}
