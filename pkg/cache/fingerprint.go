package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Fingerprint computes the canonical cache key for a resource read:
// "{resourceType}:{canonical URI}". Query parameters are sorted so
// semantically identical requests share one entry regardless of parameter
// order.
func Fingerprint(resourceType, uri string) string {
	return resourceType + ":" + CanonicalURI(uri)
}

// CanonicalURI normalizes a resource URI: the path keeps its original form,
// query parameters are sorted by key then value, and an empty query drops
// the "?" entirely.
func CanonicalURI(uri string) string {
	base, rawQuery, found := strings.Cut(uri, "?")
	if !found || rawQuery == "" {
		return base
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable query: keep the raw form rather than corrupt the key.
		return uri
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	sep := "?"
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			b.WriteString(sep)
			b.WriteString(url.QueryEscape(k))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(v))
			sep = "&"
		}
	}
	return b.String()
}
