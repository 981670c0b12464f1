package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/cache"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// ResourceHandler produces the value for a resource read. params carries the
// extracted URI path parameters plus any query parameters (path wins on
// collision).
type ResourceHandler func(ctx context.Context, params map[string]string) (any, error)

// Resource is one registered resource definition.
type Resource struct {
	// URIPattern addresses the resource, e.g. "maas://machines/{system_id}".
	URIPattern  string
	Name        string
	Description string
	// ResourceType tags cache entries for per-type TTL lookup and prefix
	// invalidation.
	ResourceType string
	Policy       cache.Policy
	Handler      ResourceHandler

	segments []patternSegment
}

// patternSegment is one path element: a literal or a named parameter.
type patternSegment struct {
	literal string
	param   string // non-empty for {name} segments
}

// ResourceInfo is the discovery shape returned by resources/list.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType"`
}

// ReadResult is a resolved resource read with its cache metadata. The
// transport emits CacheControl and Age as HTTP headers.
type ReadResult struct {
	URI   string
	Value any

	CacheHit bool
	// CacheControl is empty when caching is disabled for the resource.
	CacheControl string
	// Age is the entry age on a cache hit; zero otherwise.
	Age time.Duration
}

// ResourceRegistry matches URIs against registered patterns and serves reads
// through the shared cache. Built once at startup, read-only afterwards.
type ResourceRegistry struct {
	resources []*Resource
	store     *cache.Store
}

// NewResourceRegistry creates a registry backed by the given cache store.
func NewResourceRegistry(store *cache.Store) *ResourceRegistry {
	return &ResourceRegistry{store: store}
}

// Register adds a resource definition. Duplicate patterns are an error.
func (r *ResourceRegistry) Register(res Resource) error {
	if res.Handler == nil {
		return fmt.Errorf("resource %q has no handler", res.URIPattern)
	}
	segments, err := parsePattern(res.URIPattern)
	if err != nil {
		return err
	}
	res.segments = segments

	for _, existing := range r.resources {
		if existing.URIPattern == res.URIPattern {
			return fmt.Errorf("resource %q is already registered", res.URIPattern)
		}
	}
	r.resources = append(r.resources, &res)
	return nil
}

// List returns all resource descriptors in registration order.
func (r *ResourceRegistry) List() []ResourceInfo {
	out := make([]ResourceInfo, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, ResourceInfo{
			URI:         res.URIPattern,
			Name:        res.Name,
			Description: res.Description,
			MimeType:    "application/json",
		})
	}
	return out
}

// Read resolves a resource URI: match, cache lookup, handler on miss,
// insert, header metadata.
func (r *ResourceRegistry) Read(ctx context.Context, uri string) (*ReadResult, error) {
	res, params, err := r.match(uri)
	if err != nil {
		return nil, err
	}

	cached := res.Policy.Enabled && r.store.Enabled()
	if !cached {
		value, err := res.Handler(ctx, params)
		if err != nil {
			return nil, err
		}
		return &ReadResult{URI: uri, Value: value}, nil
	}

	fingerprint := cache.Fingerprint(res.ResourceType, uri)
	ttl := r.store.ResolveTTL(res.ResourceType, res.Policy)

	if entry, ok := r.store.Get(fingerprint); ok {
		slog.Debug("Resource cache hit", "uri", uri, "fingerprint", fingerprint)
		return &ReadResult{
			URI:          uri,
			Value:        entry.Value,
			CacheHit:     true,
			CacheControl: cache.ControlHeader(entry.TTL, res.Policy),
			Age:          r.store.Now().Sub(entry.InsertedAt),
		}, nil
	}

	value, err := res.Handler(ctx, params)
	if err != nil {
		return nil, err
	}
	r.store.Set(fingerprint, value, res.ResourceType, res.Policy)

	return &ReadResult{
		URI:          uri,
		Value:        value,
		CacheControl: cache.ControlHeader(ttl, res.Policy),
	}, nil
}

// match finds the registered resource for a URI. Exact (parameter-free)
// matches beat parameterized ones; among parameterized candidates the one
// with the fewest parameters wins.
func (r *ResourceRegistry) match(uri string) (*Resource, map[string]string, error) {
	path, rawQuery, _ := strings.Cut(uri, "?")
	segments, err := splitURI(path)
	if err != nil {
		return nil, nil, err
	}

	var best *Resource
	var bestParams map[string]string
	bestScore := -1

	for _, res := range r.resources {
		params, ok := matchSegments(res.segments, segments)
		if !ok {
			continue
		}
		// Fewer parameters = more literal segments = more specific.
		score := len(segments) - len(params)
		if score > bestScore {
			best, bestParams, bestScore = res, params, score
		}
	}
	if best == nil {
		return nil, nil, errdefs.NotFound("resource %q not found", uri)
	}

	if rawQuery != "" {
		if values, err := url.ParseQuery(rawQuery); err == nil {
			for k, vs := range values {
				if _, taken := bestParams[k]; !taken && len(vs) > 0 {
					bestParams[k] = vs[0]
				}
			}
		}
	}
	return best, bestParams, nil
}

func matchSegments(pattern []patternSegment, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if seg.param != "" {
			params[seg.param] = segments[i]
			continue
		}
		if seg.literal != segments[i] {
			return nil, false
		}
	}
	return params, true
}

// parsePattern splits a maas:// pattern into segments, validating {name}
// parameter syntax.
func parsePattern(pattern string) ([]patternSegment, error) {
	raw, err := splitURI(pattern)
	if err != nil {
		return nil, fmt.Errorf("resource pattern %q: %w", pattern, err)
	}
	segments := make([]patternSegment, 0, len(raw))
	for _, s := range raw {
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			name := s[1 : len(s)-1]
			if name == "" {
				return nil, fmt.Errorf("resource pattern %q: empty parameter name", pattern)
			}
			segments = append(segments, patternSegment{param: name})
			continue
		}
		segments = append(segments, patternSegment{literal: s})
	}
	return segments, nil
}

// splitURI strips the maas:// scheme and splits the remainder on "/".
func splitURI(uri string) ([]string, error) {
	rest, ok := strings.CutPrefix(uri, "maas://")
	if !ok || rest == "" {
		return nil, errdefs.InvalidParameters(fmt.Sprintf("invalid resource URI %q: expected maas:// scheme", uri))
	}
	return strings.Split(strings.TrimSuffix(rest, "/"), "/"), nil
}
