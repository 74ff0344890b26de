package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ParseError marks a malformed evidence item. It is non-fatal: the item is
// skipped and the cycle continues.
type ParseError struct {
	Connector string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error from %s: %s", e.Connector, e.Reason)
}

// contentHashChars is how much leading text feeds the content hash when an
// item has no URL.
const contentHashChars = 512

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize validates an item and assigns its stable ID.
// Returns a *ParseError for items that cannot enter the pipeline.
func Normalize(it Item) (Item, error) {
	it.Title = strings.TrimSpace(it.Title)
	it.Text = CollapseWhitespace(it.Text)

	if it.Text == "" && it.Title == "" {
		return it, &ParseError{Connector: it.Connector, Reason: "empty text"}
	}
	if it.Connector == "" {
		return it, &ParseError{Connector: "unknown", Reason: "missing connector id"}
	}

	it.ID = Fingerprint(it)
	return it, nil
}

// Fingerprint derives the stable item identity: a hash over the normalized
// URL when one is present, else a content hash over title plus leading text.
func Fingerprint(it Item) string {
	if it.URL != "" {
		return hashString("url:" + NormalizeURL(it.URL))
	}
	text := it.Text
	if len(text) > contentHashChars {
		text = text[:contentHashChars]
	}
	return hashString("content:" + strings.ToLower(it.Title) + "|" + strings.ToLower(text))
}

// NormalizeURL canonicalizes a URL for fingerprinting: lowercased scheme and
// host, no fragment, no tracking query parameters, no trailing slash.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "ref" || key == "fbclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// CollapseWhitespace trims and collapses runs of whitespace to single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags and collapses the remaining whitespace.
func StripHTML(s string) string {
	return CollapseWhitespace(htmlTagRe.ReplaceAllString(s, " "))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
