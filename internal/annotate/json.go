package annotate

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/links"
)

// parseObject parses s as a JSON object. ok is false for anything else.
func parseObject(s string) (gjson.Result, bool) {
	if !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	obj := gjson.Parse(s)
	if !obj.IsObject() {
		return gjson.Result{}, false
	}
	return obj, true
}

func hasAll(obj gjson.Result, keys ...string) bool {
	for _, k := range keys {
		if !obj.Get(k).Exists() {
			return false
		}
	}
	return true
}

func hasAny(obj gjson.Result, keys ...string) bool {
	for _, k := range keys {
		if obj.Get(k).Exists() {
			return true
		}
	}
	return false
}

// wholeObject accepts s only when, trimmed, it is a JSON object from its
// first byte to its last.
func wholeObject(s string, keys ...string) (gjson.Result, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return gjson.Result{}, false
	}
	obj, ok := parseObject(s)
	if !ok || !hasAll(obj, keys...) {
		return gjson.Result{}, false
	}
	return obj, true
}

// embeddedObject parses the span from the first '{' to the last '}' in s.
func embeddedObject(s string) (gjson.Result, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	return parseObject(s[start : end+1])
}

// firstEmbedded returns the first turn, in transcript order, whose embedded
// object carries any of keys.
func firstEmbedded(t domain.Transcript, keys ...string) (gjson.Result, bool) {
	for _, turn := range t {
		obj, ok := embeddedObject(turn.Content)
		if ok && hasAny(obj, keys...) {
			return obj, true
		}
	}
	return gjson.Result{}, false
}

// text renders a field as display text. Non-string values keep their JSON
// form so structured reasoning traces survive.
func text(obj gjson.Result, key string) *string {
	v := obj.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	var s string
	if v.Type == gjson.String {
		s = strings.TrimSpace(v.String())
	} else {
		s = strings.TrimSpace(v.Raw)
	}
	if s == "" {
		return nil
	}
	return &s
}

func number(obj gjson.Result, key string) *float64 {
	v := obj.Get(key)
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		return &f
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// linkList reads a list of URLs (or a single string of them) and runs it
// through the link extractor so only valid, unique URLs remain.
func linkList(obj gjson.Result, key string, limit int) []string {
	v := obj.Get(key)
	if !v.Exists() {
		return nil
	}
	var parts []string
	if v.IsArray() {
		for _, item := range v.Array() {
			if item.Type == gjson.String {
				parts = append(parts, item.String())
			} else if u := item.Get("url"); u.Type == gjson.String {
				parts = append(parts, u.String())
			}
		}
	} else if v.Type == gjson.String {
		parts = append(parts, v.String())
	}
	return links.Extract(strings.Join(parts, " "), limit)
}

func objectMap(obj gjson.Result, key string) map[string]any {
	v := obj.Get(key)
	if !v.IsObject() {
		return nil
	}
	m, ok := v.Value().(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	return m
}
