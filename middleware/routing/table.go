package routing

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"edge-gateway/middleware/pipeline"
)

var ErrNotFound = errors.New("route not found")

// Route é a forma de configuração de uma rota, ex:
//
//	{ID: "auth", Path: "/api/auth/**", StripPrefix: 1, URI: "http://localhost:8082"}
type Route struct {
	ID          string
	Path        string
	StripPrefix int
	URI         string
}

// Entry é uma rota já validada.
type Entry struct {
	ID          string
	Prefix      string
	StripPrefix int
	Target      *url.URL
}

// Table é imutável depois de NewTable; leitura concorrente sem lock.
type Table struct {
	entries []Entry
}

func NewTable(routes []Route) (*Table, error) {
	entries := make([]Entry, 0, len(routes))
	seen := make(map[string]string, len(routes))

	for i, r := range routes {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = fmt.Sprintf("route-%d", i)
		}

		prefix, err := literalPrefix(r.Path)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", id, err)
		}
		if other, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("route %s: path %q already used by route %s", id, prefix, other)
		}
		seen[prefix] = id

		if r.StripPrefix < 0 {
			return nil, fmt.Errorf("route %s: strip_prefix must be >= 0", id)
		}

		target, err := url.Parse(strings.TrimSpace(r.URI))
		if err != nil {
			return nil, fmt.Errorf("route %s: invalid uri: %w", id, err)
		}
		if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			return nil, fmt.Errorf("route %s: uri %q must be an absolute http(s) URL", id, r.URI)
		}

		entries = append(entries, Entry{ID: id, Prefix: prefix, StripPrefix: r.StripPrefix, Target: target})
	}

	// mais longo primeiro; empate por ID para ordem estável
	sort.SliceStable(entries, func(i, j int) bool {
		if len(entries[i].Prefix) != len(entries[j].Prefix) {
			return len(entries[i].Prefix) > len(entries[j].Prefix)
		}
		return entries[i].ID < entries[j].ID
	})
	return &Table{entries: entries}, nil
}

// Resolve devolve a rota de prefixo literal mais longo que casa com path.
func (t *Table) Resolve(path string) (Entry, error) {
	for _, e := range t.entries {
		if pipeline.MatchPrefix(path, e.Prefix) {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
}

func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Rewrite monta a URL final: URI base + path sem os N primeiros segmentos + query.
// escapedPath vem codificado; os segmentos são cortados nessa forma para que
// um %2F continue dentro do seu segmento.
func (e Entry) Rewrite(escapedPath, rawQuery string) *url.URL {
	u := *e.Target
	raw := joinPath(e.Target.EscapedPath(), stripSegments(escapedPath, e.StripPrefix))
	if dec, err := url.PathUnescape(raw); err == nil {
		u.Path, u.RawPath = dec, raw
	} else {
		u.Path, u.RawPath = raw, ""
	}
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u
}

// literalPrefix aceita "/api/auth/**", "/api/auth/" e "/api/auth".
func literalPrefix(pattern string) (string, error) {
	p := strings.TrimSpace(pattern)
	p = strings.TrimSuffix(p, "**")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/", nil
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must start with /", pattern)
	}
	if strings.Contains(p, "*") {
		return "", fmt.Errorf("path %q: only a trailing /** wildcard is supported", pattern)
	}
	return p, nil
}

func stripSegments(path string, n int) string {
	if n <= 0 {
		if path == "" {
			return "/"
		}
		return path
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if n >= len(segments) {
		return "/"
	}
	return "/" + strings.Join(segments[n:], "/")
}

func joinPath(base, rest string) string {
	base = strings.TrimSuffix(base, "/")
	if rest == "" {
		rest = "/"
	}
	return base + rest
}
