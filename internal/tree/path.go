// Package tree provides the materialized-path index used by suites and plans.
//
// Each node stores its parent, a tree_id identifying the connected component,
// and a path of dot-joined zero-padded node ids. Prefix comparison on paths
// answers ancestor/descendant predicates in O(depth) without recursion.
package tree

import (
	"fmt"
	"strconv"
	"strings"
)

const segmentWidth = 10

// Segment renders a node id as a fixed-width path segment.
func Segment(id int64) string {
	return fmt.Sprintf("%0*d", segmentWidth, id)
}

// ChildPath appends a node id to its parent's path. An empty parent path
// produces a root path.
func ChildPath(parentPath string, id int64) string {
	if parentPath == "" {
		return Segment(id)
	}
	return parentPath + "." + Segment(id)
}

// IsAncestorPath reports whether a node with path a is on the ancestor chain
// of a node with path b (a node is on its own chain).
func IsAncestorPath(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(b, a+".")
}

// IsDescendantPath reports whether a is b or lies under b.
func IsDescendantPath(a, b string) bool {
	return IsAncestorPath(b, a)
}

// Depth returns the number of segments in a path; roots have depth 1.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

// AncestorIDs parses the ids along a path, root first, excluding the node's
// own id.
func AncestorIDs(path string) []int64 {
	segs := strings.Split(path, ".")
	if len(segs) <= 1 {
		return nil
	}
	ids := make([]int64, 0, len(segs)-1)
	for _, s := range segs[:len(segs)-1] {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ChainIDs parses every id along a path, root first, including the node's own.
func ChainIDs(path string) []int64 {
	segs := strings.Split(path, ".")
	ids := make([]int64, 0, len(segs))
	for _, s := range segs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Rebase replaces the old prefix of path with the new one. path must lie
// under oldPrefix.
func Rebase(path, oldPrefix, newPrefix string) string {
	if path == oldPrefix {
		return newPrefix
	}
	return newPrefix + strings.TrimPrefix(path, oldPrefix)
}
