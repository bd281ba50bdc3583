package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/model"
)

func TestSubtreeQueryWidensPlanAndSuiteTargets(t *testing.T) {
	// Nested plans and suites hang off rows of their own table, so the
	// relation trees carry no plan→plan or suite→suite edge; the subtree
	// expansion has to reach the descendants instead.
	r := NewRegistry()
	for _, kind := range []model.EntityKind{model.KindPlan, model.KindSuite} {
		for _, e := range r.DeleteTree(kind) {
			assert.NotEqual(t, kind, e.Child)
		}
		for _, e := range r.ArchiveTree(kind) {
			assert.NotEqual(t, kind, e.Child)
		}

		q := subtreeQuery(kind, false)
		require.NotEmpty(t, q, string(kind))
		assert.Contains(t, q, TableFor(kind))
		assert.Contains(t, q, "d.tree_id = r.tree_id")
		assert.Contains(t, q, "d.path LIKE r.path || '.%'")
		assert.Contains(t, q, "NOT d.is_deleted")
	}
}

func TestSubtreeQueryDeletedRows(t *testing.T) {
	// Recovery walks deleted rows.
	q := subtreeQuery(model.KindPlan, true)
	require.NotEmpty(t, q)
	assert.Contains(t, q, "AND d.is_deleted")
	assert.NotContains(t, q, "NOT d.is_deleted")
}

func TestSubtreeQueryFlatKinds(t *testing.T) {
	for _, kind := range []model.EntityKind{
		model.KindProject, model.KindCase, model.KindTest, model.KindResult,
	} {
		assert.Empty(t, subtreeQuery(kind, false), string(kind))
	}
}
