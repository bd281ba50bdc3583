package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/model"
)

func treeChildren(edges []Relation) map[model.EntityKind]Relation {
	out := make(map[model.EntityKind]Relation)
	for _, e := range edges {
		out[e.Child] = e
	}
	return out
}

func TestDeleteTreeProject(t *testing.T) {
	r := NewRegistry()
	edges := r.DeleteTree(model.KindProject)
	require.NotEmpty(t, edges)

	children := treeChildren(edges)

	// Every CASCADE-reachable model appears exactly once.
	assert.Contains(t, children, model.KindSuite)
	assert.Contains(t, children, model.KindCase)
	assert.Contains(t, children, model.KindPlan)
	assert.Contains(t, children, model.KindTest)
	assert.Contains(t, children, model.KindResult)
	assert.Contains(t, children, model.KindStep)
	assert.Contains(t, children, model.KindStepResult)

	// Tests are reachable via project, plan and case; the de-duplication
	// keeps the relation whose source has the highest weight.
	assert.Equal(t, model.KindProject, children[model.KindTest].Parent)

	// No edge points back at the root.
	for _, e := range edges {
		assert.NotEqual(t, model.KindProject, e.Child)
	}
}

func TestDeleteTreeExcludesNonCascade(t *testing.T) {
	r := NewRegistry()
	for _, e := range r.DeleteTree(model.KindUser) {
		assert.Equal(t, Cascade, e.OnDelete)
	}
	// user→test is SET_NULL, so nothing cascades from a user.
	assert.Empty(t, r.DeleteTree(model.KindUser))
}

func TestDeleteTreeDeduplicates(t *testing.T) {
	r := NewRegistry()
	seen := make(map[model.EntityKind]int)
	for _, e := range r.DeleteTree(model.KindProject) {
		seen[e.Child]++
	}
	for kind, n := range seen {
		assert.Equal(t, 1, n, "model %s appears %d times", kind, n)
	}
}

func TestArchiveTreeSkipsRowsWithoutArchiveFlag(t *testing.T) {
	r := NewRegistry()
	children := treeChildren(r.ArchiveTree(model.KindPlan))

	assert.Contains(t, children, model.KindTest)
	// Labeled items carry no is_archive column and are skipped for archival.
	assert.NotContains(t, children, model.KindLabeledItem)
}

func TestCaseTreeReachesSteps(t *testing.T) {
	r := NewRegistry()
	children := treeChildren(r.DeleteTree(model.KindCase))

	assert.Contains(t, children, model.KindStep)
	assert.Contains(t, children, model.KindTest)
	assert.Contains(t, children, model.KindResult)
	assert.Contains(t, children, model.KindAttachment)
}
