package drawitems

import (
	"sort"
	"strings"

	"github.com/gogpu/storm/internal/instance"
)

// Collection selects the rprims a render pass draws.
type Collection struct {
	// Name identifies the collection for change tracking, e.g. "geometry".
	Name string
	// RootPaths include every rprim at or below one of the paths.
	// An empty list includes everything.
	RootPaths []string
	// ExcludePaths remove rprims at or below one of the paths.
	ExcludePaths []string
}

// Digest hashes the collection's contents. Collections with equal name and
// path sets have equal digests regardless of path order.
func (c Collection) Digest() uint64 {
	h := instance.HashString(c.Name)
	h = instance.Combine(h, hashPaths(c.RootPaths))
	h = instance.Combine(h, hashPaths(c.ExcludePaths))
	return h
}

func hashPaths(paths []string) uint64 {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return instance.HashString(strings.Join(sorted, "\x00"))
}

// Contains reports whether the rprim at id belongs to the collection.
func (c Collection) Contains(id string) bool {
	if len(c.RootPaths) > 0 {
		in := false
		for _, root := range c.RootPaths {
			if hasPathPrefix(id, root) {
				in = true
				break
			}
		}
		if !in {
			return false
		}
	}
	for _, ex := range c.ExcludePaths {
		if hasPathPrefix(id, ex) {
			return false
		}
	}
	return true
}

// hasPathPrefix reports whether path is prefix or lies below it.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
