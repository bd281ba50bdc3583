package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChildPath(t *testing.T) {
	root := ChildPath("", 1)
	assert.Equal(t, "0000000001", root)

	child := ChildPath(root, 42)
	assert.Equal(t, "0000000001.0000000042", child)
}

func TestIsAncestorPath(t *testing.T) {
	root := ChildPath("", 1)
	child := ChildPath(root, 2)
	grand := ChildPath(child, 3)
	other := ChildPath("", 10)

	assert.True(t, IsAncestorPath(root, grand))
	assert.True(t, IsAncestorPath(child, grand))
	assert.True(t, IsAncestorPath(grand, grand))
	assert.False(t, IsAncestorPath(grand, root))
	assert.False(t, IsAncestorPath(other, grand))

	// Prefix comparison must not confuse sibling ids sharing digits.
	a := ChildPath("", 1)
	b := ChildPath("", 11)
	assert.False(t, IsAncestorPath(a, b))
}

func TestDepthAndChain(t *testing.T) {
	p := ChildPath(ChildPath(ChildPath("", 5), 6), 7)
	assert.Equal(t, 3, Depth(p))
	assert.Equal(t, []int64{5, 6}, AncestorIDs(p))
	assert.Equal(t, []int64{5, 6, 7}, ChainIDs(p))
	assert.Nil(t, AncestorIDs(ChildPath("", 5)))
}

func TestRebase(t *testing.T) {
	oldRoot := ChildPath("", 1)
	node := ChildPath(oldRoot, 2)
	newRoot := ChildPath(ChildPath("", 9), 1)

	assert.Equal(t, newRoot, Rebase(oldRoot, oldRoot, newRoot))
	assert.Equal(t, ChildPath(newRoot, 2), Rebase(node, oldRoot, newRoot))
}
