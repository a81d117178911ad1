package internal

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// PagePath is a site-relative route such as "/apply/". It is the unit of
// comparison and is shared by both origins.
type PagePath string

// Role identifies which of the three per-page artifacts a file holds. The
// values double as directory names on disk.
type Role string

const (
	RoleBaseline  Role = "staging"
	RoleCandidate Role = "prod"
	RoleDiff      Role = "diff"
)

// Roles lists the artifact roles in report column order.
var Roles = []Role{RoleBaseline, RoleCandidate, RoleDiff}

// ArtifactKey maps a page path to the filesystem-safe name used for its
// screenshots:
//
//	"/"        -> "_"
//	"/apply/"  -> "_apply_"
//	"/a b?x=1" -> "_a-b-x=1"
//
// Every '/' becomes '_'. Backslash, ':', '*', '?', '"', '<', '>', '|',
// spaces and ASCII control characters become '-'. An empty path is
// treated as "/". Everything else is kept as is.
func ArtifactKey(p PagePath) string {
	s := string(p)
	if s == "" {
		s = "/"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/':
			b.WriteByte('_')
		case r < 0x20 || r == 0x7f || r == ' ':
			b.WriteByte('-')
		case strings.ContainsRune(`\:*?"<>|`, r):
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Layout resolves artifact locations for one device:
// {Root}/{Device}/{role}/{ArtifactKey}.png
type Layout struct {
	Root   string
	Device string
}

// Dir returns the directory holding every artifact of the given role.
func (l Layout) Dir(role Role) string {
	return filepath.Join(l.Root, l.Device, string(role))
}

// Path returns the PNG location for a page's artifact of the given role.
func (l Layout) Path(role Role, p PagePath) string {
	return filepath.Join(l.Dir(role), ArtifactKey(p)+".png")
}

// ResultsPath is where a run's comparison results are persisted.
func (l Layout) ResultsPath() string {
	return filepath.Join(l.Root, l.Device, "results.json")
}

// PageURL joins an origin such as "https://staging.example.com" with a
// page path. The origin may carry its own path prefix; the page path is
// appended to it.
func PageURL(origin string, p PagePath) (string, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q must be an absolute URL (e.g. https://example.com)", origin)
	}

	path, query, _ := strings.Cut(string(p), "?")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = u.Path + path
	u.RawPath = ""
	if query != "" {
		u.RawQuery = query
	}
	return u.String(), nil
}

// pageURLOrJoin is PageURL for display purposes: an origin that does not
// parse is joined to the page path as plain text.
func pageURLOrJoin(origin string, p PagePath) string {
	s, err := PageURL(origin, p)
	if err != nil {
		return strings.TrimRight(origin, "/") + string(p)
	}
	return s
}
