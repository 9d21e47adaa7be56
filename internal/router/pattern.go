package router

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/vyrodovalexey/langgate/internal/util"
)

// WildcardParam is the parameter name bound to a trailing "*" segment.
const WildcardParam = "*"

// Params holds path parameters captured by a Pattern.
type Params map[string]string

// Get returns the named parameter, or "" when absent.
func (p Params) Get(name string) string {
	return p[name]
}

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
)

type segment struct {
	kind  segmentKind
	value string // literal text or parameter name
}

// Pattern is a compiled path template. Templates are made of "/"-separated
// segments: literals, ":name" captures matching exactly one segment, and an
// optional final "*" capturing the remaining path.
type Pattern struct {
	template string
	segments []segment
	wildcard bool
}

// Template returns the template the pattern was compiled from.
func (p *Pattern) Template() string {
	return p.template
}

// Match reports whether path matches and returns the captured parameters.
// path may be escaped; captured values are unescaped.
func (p *Pattern) Match(path string) (Params, bool) {
	parts := splitPath(NormalizePath(path))

	if p.wildcard {
		if len(parts) < len(p.segments) {
			return nil, false
		}
	} else if len(parts) != len(p.segments) {
		return nil, false
	}

	var params Params
	for i, seg := range p.segments {
		raw := parts[i]
		val, err := url.PathUnescape(raw)
		if err != nil {
			return nil, false
		}
		switch seg.kind {
		case segLiteral:
			if val != seg.value {
				return nil, false
			}
		case segParam:
			if val == "" {
				return nil, false
			}
			if params == nil {
				params = make(Params, len(p.segments)+1)
			}
			params[seg.value] = val
		}
	}

	if p.wildcard {
		rest, err := url.PathUnescape(strings.Join(parts[len(p.segments):], "/"))
		if err != nil {
			return nil, false
		}
		if params == nil {
			params = make(Params, 1)
		}
		params[WildcardParam] = strings.TrimLeft(rest, "/")
	}
	if params == nil {
		params = Params{}
	}
	return params, true
}

// NormalizePath strips one trailing slash from paths longer than "/" and
// maps the empty path to "/".
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

func splitPath(path string) []string {
	if path == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

func compile(template string) (*Pattern, error) {
	if template == "" {
		return nil, util.NewConfigError("route.pattern", "must not be empty")
	}
	if !strings.HasPrefix(template, "/") {
		return nil, util.NewConfigError("route.pattern", fmt.Sprintf("%q must start with /", template))
	}

	parts := splitPath(NormalizePath(template))
	p := &Pattern{template: template, segments: make([]segment, 0, len(parts))}
	seen := make(map[string]struct{}, len(parts))

	for i, part := range parts {
		switch {
		case part == WildcardParam:
			if i != len(parts)-1 {
				return nil, util.NewConfigError("route.pattern",
					fmt.Sprintf("%q: wildcard must be the last segment", template))
			}
			p.wildcard = true
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				return nil, util.NewConfigError("route.pattern",
					fmt.Sprintf("%q: parameter name must not be empty", template))
			}
			if _, dup := seen[name]; dup {
				return nil, util.NewConfigError("route.pattern",
					fmt.Sprintf("%q: duplicate parameter %q", template, name))
			}
			seen[name] = struct{}{}
			p.segments = append(p.segments, segment{kind: segParam, value: name})
		case part == "":
			return nil, util.NewConfigError("route.pattern",
				fmt.Sprintf("%q: empty path segment", template))
		default:
			p.segments = append(p.segments, segment{kind: segLiteral, value: part})
		}
	}
	return p, nil
}

// defaultCacheSize bounds the process-wide pattern cache.
const defaultCacheSize = 1024

// Cache memoizes compiled patterns by raw template string, evicting the
// least recently used entry when full.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	max     int
	clock   int64
}

type cacheEntry struct {
	pattern    *Pattern
	lastAccess int64
}

// NewCache creates a pattern cache holding at most max templates.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheSize
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		max:     maxEntries,
	}
}

var defaultCache = NewCache(defaultCacheSize)

// Compile compiles template using the process-wide cache.
func Compile(template string) (*Pattern, error) {
	return defaultCache.Compile(template)
}

// Compile returns the cached pattern for template, compiling it on a miss.
// Invalid templates are not cached.
func (c *Cache) Compile(template string) (*Pattern, error) {
	m := getPatternCacheMetrics()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	if e, ok := c.entries[template]; ok {
		e.lastAccess = c.clock
		m.hits.Inc()
		return e.pattern, nil
	}
	m.misses.Inc()

	p, err := compile(template)
	if err != nil {
		return nil, err
	}

	if len(c.entries) >= c.max {
		c.evictOldest()
		m.evictions.Inc()
	}
	c.entries[template] = &cacheEntry{pattern: p, lastAccess: c.clock}
	m.size.Set(float64(len(c.entries)))
	return p, nil
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest must be called with c.mu held.
func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    int64 = -1
	)
	for k, e := range c.entries {
		if oldest == -1 || e.lastAccess < oldest {
			oldest = e.lastAccess
			oldestKey = k
		}
	}
	delete(c.entries, oldestKey)
}
