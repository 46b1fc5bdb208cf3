package fetch

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Bases derives the bases used to resolve stylesheet links of a document
// loaded from documentURL: the root is scheme://host, the relative base is
// the document's directory with a trailing slash.
func Bases(documentURL string) (root, relative string) {
	parts := strings.Split(documentURL, "/")
	relative = strings.Join(parts[:len(parts)-1], "/") + "/"
	if len(parts) > 3 {
		parts = parts[:3]
	}
	root = strings.Join(parts, "/")
	return root, relative
}

// FileBase returns a file URL for the directory containing path, suitable as
// relative base for documents read from disk.
func FileBase(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Dir(abs))}
	return strings.TrimSuffix(u.String(), "/") + "/", nil
}

// Resolve resolves href against the relative base when set, otherwise
// against the root base. Without any base, or when either side does not
// parse, href is returned as is.
func Resolve(href, relative, root string) string {
	base := relative
	if base == "" {
		base = root
	}
	if base == "" {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	hu, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(hu).String()
}
