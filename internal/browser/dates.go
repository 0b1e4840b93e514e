package browser

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/araddon/dateparse"
)

// Date-extraction patterns, ported from the original Python agent's
// on-page regexes: DOM-text dates first (several punctuation/CJK
// separators), then a handful of known URL path shapes used by
// government sites.
var (
	domTextDate = regexp.MustCompile(`(\d{4})[-年./](\d{1,2})[-月./](\d{1,2})日?`)
	domStandalone8Digit = regexp.MustCompile(`(?:^|[^\d])(20\d{2})(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])(?:[^\d]|$)`)

	urlSlashYMD  = regexp.MustCompile(`/(20\d{2})(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])/`)
	urlTStem     = regexp.MustCompile(`/t(20\d{2})(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])_`)
	urlWStem     = regexp.MustCompile(`/W(20\d{2})(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])`)
	urlArtPath   = regexp.MustCompile(`/art/(20\d{2})/(\d{1,2})/(\d{1,2})/`)
	urlDashMonth = regexp.MustCompile(`/(20\d{2})[-/](0[1-9]|1[0-2])/t?(\d{2})`)
)

// extractDateFromText finds the first date-shaped substring in nearby DOM
// text (e.g. an enclosing <li>'s textContent) and normalizes it to
// YYYY-MM-DD. Returns "" if none found.
func extractDateFromText(text string) string {
	if m := domTextDate.FindStringSubmatch(text); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	if m := domStandalone8Digit.FindStringSubmatch(text); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	// English-language sources (e.g. "Feb 3, 2026") don't match the
	// patterns above; fall back to a general-purpose parse so non-CJK
	// government sites aren't silently excluded.
	if t, err := dateparse.ParseAny(text); err == nil {
		return t.Format("2006-01-02")
	}
	return ""
}

// extractDateFromURL tries, in order, the five URL path patterns named in
// §4.1: /YYYYMMDD/, /tYYYYMMDD_, /WYYYYMMDD, /art/YYYY/M/D/, and
// /YYYY-MM/DD (or /YYYY-MM/tDD).
func extractDateFromURL(href string) string {
	patterns := []*regexp.Regexp{urlSlashYMD, urlTStem, urlWStem, urlArtPath, urlDashMonth}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(href); m != nil {
			return isoDate(m[1], m[2], m[3])
		}
	}
	return ""
}

// ExtractDateFromURL is the exported form of extractDateFromURL, for
// callers (e.g. the orchestrator's tool dispatch) that need to infer a
// date from a URL a section agent supplied directly, without a fresh
// browse_page call.
func ExtractDateFromURL(href string) string { return extractDateFromURL(href) }

func isoDate(y, m, d string) string {
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	return fmt.Sprintf("%s-%02d-%02d", y, mi, di)
}
