// Package links pulls reference URLs out of free-form backend text and
// supplies topic-based defaults when the text carries none.
package links

import (
	"regexp"
	"strings"
)

// minURLLength drops fragments such as "http://a" left over after trimming.
const minURLLength = 10

// trailingPunct is stripped from the end of every match; prose tends to glue
// these onto URLs.
const trailingPunct = ".,;:!?)]}>'\"`*"

// Parentheses are allowed inside a match so paths like /wiki/Foo_(bar)
// survive; an unbalanced closing one is trimmed as punctuation.
var urlPattern = regexp.MustCompile(`https?://[^\s<>\[\]"']+`)

// Extract returns the valid URLs found in text, first-seen order, without
// duplicates, at most limit entries.
func Extract(text string, limit int) []string {
	if limit <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, min(len(matches), limit))
	for _, raw := range matches {
		u := clean(raw)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}

func clean(raw string) string {
	u := trimTrailing(raw)
	if len(u) < minURLLength {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ""
	}
	u = strings.TrimRight(u, "/")
	if len(u) < minURLLength {
		return ""
	}
	return u
}

func trimTrailing(u string) string {
	for u != "" {
		last := u[len(u)-1]
		switch {
		case last == ')' && strings.Count(u, "(") >= strings.Count(u, ")"):
			return u
		case strings.IndexByte(trailingPunct, last) >= 0:
			u = u[:len(u)-1]
		default:
			return u
		}
	}
	return u
}
