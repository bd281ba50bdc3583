// Package cascade implements the soft-delete and archive engine: discovery of
// cascading relations, previewed deletion/archival with an opaque cached
// token, commit, restore and hard-delete.
package cascade

import (
	"github.com/yuriguchi/testy/internal/model"
)

// OnDelete is the declared on-delete policy of a relation. The cascade engine
// honors CASCADE only; SET_NULL and NO_ACTION relations are ignored for
// deletion but still archived.
type OnDelete int

const (
	Cascade OnDelete = iota
	SetNull
	NoAction
)

// Relation is one reverse relation from a parent entity kind to a child
// table. Generic relations address children by (content_type, object_id)
// instead of a foreign key column.
type Relation struct {
	Parent       model.EntityKind
	Child        model.EntityKind
	Table        string
	FK           string
	Generic      bool
	OnDelete     OnDelete
	HasIsArchive bool
}

// modelWeight orders entity kinds by model hierarchy; de-duplication prefers
// the relation whose source carries the highest weight.
var modelWeight = map[model.EntityKind]int{
	model.KindProject:    100,
	model.KindPlan:       80,
	model.KindSuite:      70,
	model.KindCase:       60,
	model.KindTest:       50,
	model.KindResult:     40,
	model.KindStep:       30,
	model.KindLabel:      20,
	model.KindParameter:  20,
	model.KindStatus:     20,
	model.KindAttribute:  20,
	model.KindMembership: 20,
	model.KindStepResult: 10,
}

// tableFor maps entity kinds to their tables.
var tableFor = map[model.EntityKind]string{
	model.KindProject:     "projects",
	model.KindSuite:       "testsuites",
	model.KindCase:        "testcases",
	model.KindStep:        "teststeps",
	model.KindPlan:        "testplans",
	model.KindTest:        "tests",
	model.KindResult:      "testresults",
	model.KindStepResult:  "teststepresults",
	model.KindStatus:      "statuses",
	model.KindLabel:       "labels",
	model.KindLabeledItem: "labeled_items",
	model.KindAttribute:   "custom_attributes",
	model.KindAttachment:  "attachments",
	model.KindParameter:   "parameters",
	model.KindMembership:  "memberships",
}

// verboseName maps entity kinds to their human-facing names.
var verboseName = map[model.EntityKind]string{
	model.KindProject:     "project",
	model.KindSuite:       "test suite",
	model.KindCase:        "test case",
	model.KindStep:        "test case step",
	model.KindPlan:        "test plan",
	model.KindTest:        "test",
	model.KindResult:      "test result",
	model.KindStepResult:  "test step result",
	model.KindStatus:      "status",
	model.KindLabel:       "label",
	model.KindLabeledItem: "labeled item",
	model.KindAttribute:   "custom attribute",
	model.KindAttachment:  "attachment",
	model.KindParameter:   "parameter",
	model.KindMembership:  "membership",
}

// declaredRelations lists every reverse relation the engine walks. Frozen at
// package init; request-time cost is O(|cascade|) database queries only.
var declaredRelations = []Relation{
	{Parent: model.KindProject, Child: model.KindSuite, Table: "testsuites", FK: "project_id", OnDelete: Cascade},
	{Parent: model.KindProject, Child: model.KindCase, Table: "testcases", FK: "project_id", OnDelete: Cascade, HasIsArchive: true},
	{Parent: model.KindProject, Child: model.KindPlan, Table: "testplans", FK: "project_id", OnDelete: Cascade, HasIsArchive: true},
	{Parent: model.KindProject, Child: model.KindTest, Table: "tests", FK: "project_id", OnDelete: Cascade, HasIsArchive: true},
	{Parent: model.KindProject, Child: model.KindResult, Table: "testresults", FK: "project_id", OnDelete: Cascade, HasIsArchive: true},
	{Parent: model.KindProject, Child: model.KindParameter, Table: "parameters", FK: "project_id", OnDelete: Cascade},
	{Parent: model.KindProject, Child: model.KindLabel, Table: "labels", FK: "project_id", OnDelete: Cascade},
	{Parent: model.KindProject, Child: model.KindAttribute, Table: "custom_attributes", FK: "project_id", OnDelete: Cascade},
	{Parent: model.KindProject, Child: model.KindStatus, Table: "statuses", FK: "project_id", OnDelete: Cascade},
	{Parent: model.KindProject, Child: model.KindMembership, Table: "memberships", FK: "project_id", OnDelete: Cascade},
	{Parent: model.KindProject, Child: model.KindAttachment, Table: "attachments", FK: "project_id", OnDelete: Cascade},

	{Parent: model.KindSuite, Child: model.KindCase, Table: "testcases", FK: "suite_id", OnDelete: Cascade, HasIsArchive: true},

	{Parent: model.KindCase, Child: model.KindStep, Table: "teststeps", FK: "case_id", OnDelete: Cascade},
	{Parent: model.KindCase, Child: model.KindTest, Table: "tests", FK: "case_id", OnDelete: Cascade, HasIsArchive: true},
	{Parent: model.KindCase, Child: model.KindLabeledItem, Table: "labeled_items", Generic: true, OnDelete: Cascade},
	{Parent: model.KindCase, Child: model.KindAttachment, Table: "attachments", Generic: true, OnDelete: Cascade},

	{Parent: model.KindStep, Child: model.KindAttachment, Table: "attachments", Generic: true, OnDelete: Cascade},

	{Parent: model.KindPlan, Child: model.KindTest, Table: "tests", FK: "plan_id", OnDelete: Cascade, HasIsArchive: true},
	{Parent: model.KindPlan, Child: model.KindLabeledItem, Table: "labeled_items", Generic: true, OnDelete: Cascade},
	{Parent: model.KindPlan, Child: model.KindAttachment, Table: "attachments", Generic: true, OnDelete: Cascade},

	{Parent: model.KindTest, Child: model.KindResult, Table: "testresults", FK: "test_id", OnDelete: Cascade, HasIsArchive: true},

	{Parent: model.KindResult, Child: model.KindStepResult, Table: "teststepresults", FK: "test_result_id", OnDelete: Cascade},
	{Parent: model.KindResult, Child: model.KindAttachment, Table: "attachments", Generic: true, OnDelete: Cascade},

	{Parent: model.KindLabel, Child: model.KindLabeledItem, Table: "labeled_items", FK: "label_id", OnDelete: Cascade},

	// Assignee removal does not take tests with it.
	{Parent: model.KindUser, Child: model.KindTest, Table: "tests", FK: "assignee_id", OnDelete: SetNull, HasIsArchive: true},
}

// Registry holds the frozen relation trees, one per root entity kind.
type Registry struct {
	deleteTree  map[model.EntityKind][]Relation
	archiveTree map[model.EntityKind][]Relation
}

// NewRegistry freezes the relation trees from the declared relations.
func NewRegistry() *Registry {
	r := &Registry{
		deleteTree:  make(map[model.EntityKind][]Relation),
		archiveTree: make(map[model.EntityKind][]Relation),
	}
	kinds := make(map[model.EntityKind]bool)
	for _, rel := range declaredRelations {
		kinds[rel.Parent] = true
	}
	for kind := range kinds {
		r.deleteTree[kind] = buildTree(kind, true)
		r.archiveTree[kind] = buildTree(kind, false)
	}
	return r
}

// DeleteTree returns the frozen CASCADE closure edges for the root kind, in
// walk order.
func (r *Registry) DeleteTree(kind model.EntityKind) []Relation {
	return r.deleteTree[kind]
}

// ArchiveTree returns the frozen archive closure edges for the root kind:
// every relation, restricted to children carrying is_archive.
func (r *Registry) ArchiveTree(kind model.EntityKind) []Relation {
	return r.archiveTree[kind]
}

// buildTree walks the declared relations breadth-first from root, keeping
// CASCADE relations for deletion (all for archival), excluding self-loops,
// and de-duplicating by related model in favor of the heaviest source.
func buildTree(root model.EntityKind, deletion bool) []Relation {
	// Candidate edges per child model across the whole reachable graph.
	best := make(map[model.EntityKind]Relation)
	visited := map[model.EntityKind]bool{root: true}
	frontier := []model.EntityKind{root}

	for len(frontier) > 0 {
		var next []model.EntityKind
		for _, parent := range frontier {
			for _, rel := range declaredRelations {
				if rel.Parent != parent {
					continue
				}
				if rel.Child == rel.Parent || rel.Child == root {
					continue // self-loops excluded
				}
				if deletion && rel.OnDelete != Cascade {
					continue
				}
				if !deletion && !rel.HasIsArchive && !archiveCarrier(rel.Child) {
					continue // rows lacking is_archive are skipped for archival
				}
				cur, ok := best[rel.Child]
				if !ok || modelWeight[rel.Parent] > modelWeight[cur.Parent] {
					best[rel.Child] = rel
				}
				if !visited[rel.Child] {
					visited[rel.Child] = true
					next = append(next, rel.Child)
				}
			}
		}
		frontier = next
	}

	// Emit edges in a stable parent-weight order so the walk visits heavy
	// models first.
	var out []Relation
	for _, rel := range declaredRelations {
		if b, ok := best[rel.Child]; ok && b == rel {
			out = append(out, rel)
		}
	}
	return out
}

// archiveCarrier reports whether a child kind itself cascades archive further
// even without an is_archive column on the direct relation.
func archiveCarrier(kind model.EntityKind) bool {
	switch kind {
	case model.KindCase, model.KindPlan, model.KindTest, model.KindResult:
		return true
	}
	return false
}

// TableFor returns the table for an entity kind.
func TableFor(kind model.EntityKind) string {
	return tableFor[kind]
}

// VerboseNameFor returns the human-facing name for an entity kind.
func VerboseNameFor(kind model.EntityKind) string {
	if v, ok := verboseName[kind]; ok {
		return v
	}
	return string(kind)
}
