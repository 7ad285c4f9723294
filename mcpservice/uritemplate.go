package mcpservice

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

var schemePrefix = regexp.MustCompile(`^[^:/]+://`)

// stripScheme removes a leading "scheme://" if present.
func stripScheme(s string) string {
	return schemePrefix.ReplaceAllString(s, "")
}

// uriMatcher matches URIs against one registered template. Matching ignores
// the scheme on both sides and treats every {var} placeholder as a single
// path segment whose value is percent-decoded.
type uriMatcher struct {
	template string
	names    []string
	re       *regexp.Regexp
}

func compileURITemplate(template string) (*uriMatcher, error) {
	// Validate the RFC 6570 syntax up front so that a malformed template fails
	// at registration rather than silently never matching.
	t, err := uritemplate.New(template)
	if err != nil {
		return nil, fmt.Errorf("invalid uri template %q: %w", template, err)
	}

	path := stripScheme(template)
	var (
		b     strings.Builder
		names []string
	)
	b.WriteString("^")
	for len(path) > 0 {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			b.WriteString(regexp.QuoteMeta(path))
			break
		}
		end := strings.IndexByte(path[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("invalid uri template %q: unterminated placeholder", template)
		}
		end += open
		b.WriteString(regexp.QuoteMeta(path[:open]))
		name := strings.TrimLeft(path[open+1:end], "+#./;?&")
		names = append(names, name)
		b.WriteString(`([^/#?]+?)`)
		path = path[end+1:]
	}
	// A single trailing slash on the URI is tolerated.
	b.WriteString(`/?$`)

	if len(names) != len(t.Varnames()) {
		return nil, fmt.Errorf("invalid uri template %q: unsupported placeholder syntax", template)
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid uri template %q: %w", template, err)
	}
	return &uriMatcher{template: template, names: names, re: re}, nil
}

// match reports whether uri matches and returns the decoded parameters.
func (m *uriMatcher) match(uri string) (map[string]string, bool) {
	sub := m.re.FindStringSubmatch(stripScheme(uri))
	if sub == nil {
		return nil, false
	}
	params := make(map[string]string, len(m.names))
	for i, name := range m.names {
		raw := sub[i+1]
		v, err := url.PathUnescape(raw)
		if err != nil {
			// Not decodable; path-to-regexp style matchers treat this as no match.
			return nil, false
		}
		params[name] = v
	}
	return params, true
}

// isTemplate reports whether uri contains at least one placeholder.
func isTemplate(uri string) bool {
	return strings.Contains(uri, "{") && strings.Contains(uri, "}")
}
