package core

import (
	"fmt"
	"strings"
)

// Paths are slash-delimited addresses into the hierarchical store, e.g.
// "chatlist/alice/bob". Segments must not be empty and must not contain
// '.' or '*', which are reserved by the KV key encoding.

func SplitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrBadPath)
	}

	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrBadPath, path)
		}
		if strings.ContainsAny(s, ".*>") {
			return nil, fmt.Errorf("%w: reserved character in segment %q", ErrBadPath, s)
		}
	}
	return segments, nil
}

func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// PathToKey maps a slash path to a KV subject key: "a/b/c" -> "a.b.c".
func PathToKey(path string) (string, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "."), nil
}

// KeyToPath is the inverse of PathToKey.
func KeyToPath(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

// RelativePath returns child relative to parent, or "" when they are equal.
// ok is false when child is not under parent.
func RelativePath(parent, child string) (string, bool) {
	parent = strings.Trim(parent, "/")
	child = strings.Trim(child, "/")

	if child == parent {
		return "", true
	}
	if strings.HasPrefix(child, parent+"/") {
		return child[len(parent)+1:], true
	}
	return "", false
}
