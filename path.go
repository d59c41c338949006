package microsd

import "strings"

// NormalizePath brings a path into the canonical form used throughout
// the wrapper: a leading slash, doubled slashes collapsed, and no
// trailing slash except for the root itself. Empty and "." normalize to
// "/". Normalization is idempotent.
func NormalizePath(path string) string {
	if path == "" || path == "." {
		return "/"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// JoinPath joins a directory and an entry name and normalizes the
// result.
func JoinPath(dir, name string) string {
	if dir == "" {
		return NormalizePath(name)
	}
	if name == "" {
		return NormalizePath(dir)
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return NormalizePath(dir + name)
}

// SplitPath splits a path into its parent directory and base name. The
// parent of a top level entry is "/".
func SplitPath(path string) (dir, name string) {
	p := NormalizePath(path)
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/", p[1:]
	}
	return p[:i], p[i+1:]
}
