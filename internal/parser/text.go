package parser

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	slugSeparatorRune = regexp.MustCompile(`[^a-z0-9]+`)
	currencyCodeRegex = regexp.MustCompile(`\b[A-Z]{3}\b`)
	thousandsOnly     = regexp.MustCompile(`^\d{1,3}[.,]\d{3}$`)
)

var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "ul": true, "ol": true,
	"tr": true, "td": true, "th": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "section": true, "article": true,
}

// NormalizeWhitespace collapses whitespace runs into single spaces.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// HTMLToText strips markup and returns the visible text of an HTML fragment.
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return NormalizeWhitespace(fragment)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte(' ')
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return NormalizeWhitespace(b.String())
}

// Slugify lowercases s, folds accents and joins alphanumeric runs with "-".
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	slug := slugSeparatorRune.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// SlugFromURL returns the last non-empty path segment of rawURL, lowercased.
func SlugFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segments[i]); seg != "" {
			return strings.ToLower(seg)
		}
	}
	return ""
}

// ResolveURL makes href absolute against base and drops the fragment.
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}

// ParsePrice reads a human formatted price such as "$ 12.500,00 COP" or
// "1,299.90". It returns nil when no number can be read and the ISO currency
// code when one appears in the text.
func ParsePrice(text string) (*decimal.Decimal, string) {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	currency := currencyCodeRegex.FindString(text)

	var b strings.Builder
	hasDigit := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteRune(r)
		}
	}
	if !hasDigit {
		return nil, currency
	}

	clean := strings.Trim(normalizeSeparators(b.String()), ".")
	price, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, currency
	}
	return &price, currency
}

// normalizeSeparators rewrites s so that "." is the only (decimal) separator.
// When both separators appear the rightmost one is the decimal mark; a
// separator repeated on its own is a thousands separator, and so is a single
// separator followed by exactly three digits ("4.990").
func normalizeSeparators(s string) string {
	if thousandsOnly.MatchString(s) {
		return s[:len(s)-4] + s[len(s)-3:]
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
