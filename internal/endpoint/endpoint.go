// Package endpoint builds the HTTP paths the transports are mounted on.
package endpoint

import (
	"regexp"
	"strings"
)

var repeatedSlashes = regexp.MustCompile(`/+`)

// Normalize collapses runs of slashes into one and drops a single leading
// slash: "//a//b/" becomes "a/b/".
func Normalize(p string) string {
	return strings.TrimPrefix(repeatedSlashes.ReplaceAllString(p, "/"), "/")
}

// Join joins a global prefix and an endpoint into a normalized relative path.
func Join(prefix, name string) string {
	return Normalize(prefix + "/" + name)
}

// Route returns the rooted path for prefix and name, suitable for an
// http.ServeMux pattern.
func Route(prefix, name string) string {
	return "/" + Join(prefix, name)
}
