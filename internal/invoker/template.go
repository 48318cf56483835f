package invoker

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// BuildURL substitutes {param} placeholders from path params and appends the
// query parameters URL-encoded, respecting a query string already present on
// the base URL.
func BuildURL(base string, pathParams, queryParams map[string]string) string {
	target := base
	for key, value := range pathParams {
		target = strings.ReplaceAll(target, "{"+key+"}", url.PathEscape(value))
	}

	if len(queryParams) == 0 {
		return target
	}

	values := url.Values{}
	for key, value := range queryParams {
		values.Set(key, value)
	}

	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + values.Encode()
}

// RenderSOAP renders a stored XML template against the call body. The
// template is HTML-entity-unescaped first, then {{key}} placeholders are
// substituted from the body values. Plain substitution only; no sections,
// no evaluation.
func RenderSOAP(template string, body any) string {
	unescaped := html.UnescapeString(template)

	values, _ := body.(map[string]any)
	return placeholderRe.ReplaceAllStringFunc(unescaped, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := lookupPath(values, key)
		if !ok {
			return ""
		}
		return formatValue(value)
	})
}

// lookupPath resolves a dotted key against nested maps
func lookupPath(values map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var current any = values
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// Decoded JSON numbers; print integers without a fraction.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
