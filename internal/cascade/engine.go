package cascade

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yuriguchi/testy/internal/model"
)

// Deletion/archival modes.
const (
	ModeDelete  = "delete"
	ModeArchive = "archive"
)

// PreviewEntry is the human-facing description of one related model in a
// cascade closure.
type PreviewEntry struct {
	Model                   model.EntityKind `json:"model"`
	VerboseName             string           `json:"verbose_name"`
	VerboseNameRelatedModel string           `json:"verbose_name_related_model"`
	Count                   int64            `json:"count"`
}

// PreviewResult is what the preview endpoints return, with the token the
// caller must replay on commit.
type PreviewResult struct {
	Entries []PreviewEntry `json:"entries"`
	Token   string         `json:"-"`
}

// Engine discovers cascade closures and commits soft-deletes and archivals.
type Engine struct {
	db       *sqlx.DB
	registry *Registry
	cache    *PreviewCache
}

// NewEngine creates a cascade engine.
func NewEngine(db *sqlx.DB, registry *Registry, cache *PreviewCache) *Engine {
	return &Engine{db: db, registry: registry, cache: cache}
}

// Preview computes the closure of rows that would vanish (mode delete) or be
// archived (mode archive) for the target row, caches the query descriptions
// under a fresh token, and returns counts per related model.
func (e *Engine) Preview(ctx context.Context, kind model.EntityKind, id int64, mode string) (*PreviewResult, error) {
	queries, err := e.resolveClosure(ctx, kind, id, mode)
	if err != nil {
		return nil, err
	}

	token, err := e.cache.Put(ctx, kind, id, mode, queries)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{Token: token}
	for _, q := range queries {
		result.Entries = append(result.Entries, PreviewEntry{
			Model:                   q.Kind,
			VerboseName:             VerboseNameFor(kind),
			VerboseNameRelatedModel: VerboseNameFor(q.Kind),
			Count:                   int64(len(q.IDs)),
		})
	}
	return result, nil
}

// Commit soft-deletes or archives the target row and its closure. The cached
// queries bound to the token are preferred; on cache miss or target mismatch
// the closure is recomputed under the current snapshot.
func (e *Engine) Commit(ctx context.Context, kind model.EntityKind, id int64, mode, token string) error {
	queries, ok, err := e.cache.Get(ctx, token, kind, id, mode)
	if err != nil {
		return err
	}
	if !ok {
		queries, err = e.resolveClosure(ctx, kind, id, mode)
		if err != nil {
			return err
		}
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range queries {
		if len(q.IDs) == 0 {
			continue
		}
		var stmt string
		switch mode {
		case ModeArchive:
			stmt = fmt.Sprintf(`UPDATE %s SET is_archive = true WHERE id = ANY($1)`, q.Table)
		default:
			stmt = fmt.Sprintf(`UPDATE %s SET is_deleted = true, deleted_at = now() WHERE id = ANY($1)`, q.Table)
		}
		if _, err := tx.ExecContext(ctx, stmt, pq.Array(q.IDs)); err != nil {
			return fmt.Errorf("failed to %s %s rows: %w", mode, q.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", mode, err)
	}
	e.cache.Invalidate(ctx, token)
	return nil
}

// Recover un-soft-deletes the selected rows and every cascading related row
// discovered among deleted rows.
func (e *Engine) Recover(ctx context.Context, kind model.EntityKind, ids []int64) error {
	ids, err := e.expandSubtree(ctx, kind, ids, true)
	if err != nil {
		return err
	}
	return e.walkAndUpdate(ctx, kind, ids, e.registry.DeleteTree(kind), true,
		`UPDATE %s SET is_deleted = false, deleted_at = NULL WHERE id = ANY($1)`)
}

// RestoreArchived clears is_archive on the rows and on every cascading
// descendant that carries the column.
func (e *Engine) RestoreArchived(ctx context.Context, kind model.EntityKind, ids []int64) error {
	ids, err := e.expandSubtree(ctx, kind, ids, false)
	if err != nil {
		return err
	}
	return e.walkAndUpdate(ctx, kind, ids, e.registry.ArchiveTree(kind), false,
		`UPDATE %s SET is_archive = false WHERE id = ANY($1)`)
}

// DeletePermanently hard-deletes already-soft-deleted rows and their closure.
func (e *Engine) DeletePermanently(ctx context.Context, kind model.EntityKind, ids []int64) error {
	ids, err := e.expandSubtree(ctx, kind, ids, true)
	if err != nil {
		return err
	}
	closure, err := e.collect(ctx, kind, ids, e.registry.DeleteTree(kind), true)
	if err != nil {
		return err
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Children first, root last, so FK constraints hold.
	for i := len(closure) - 1; i >= 0; i-- {
		q := closure[i]
		if len(q.IDs) == 0 {
			continue
		}
		stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1) AND is_deleted`, q.Table)
		if _, err := tx.ExecContext(ctx, stmt, pq.Array(q.IDs)); err != nil {
			return fmt.Errorf("failed to hard-delete %s rows: %w", q.Table, err)
		}
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1) AND is_deleted`, TableFor(kind))
	if _, err := tx.ExecContext(ctx, stmt, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to hard-delete %s rows: %w", TableFor(kind), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit hard delete: %w", err)
	}
	return nil
}

// resolveClosure resolves the full closure of one target row, the target and
// its subtree first.
func (e *Engine) resolveClosure(ctx context.Context, kind model.EntityKind, id int64, mode string) ([]QueryDesc, error) {
	edges := e.registry.DeleteTree(kind)
	if mode == ModeArchive {
		edges = e.registry.ArchiveTree(kind)
	}
	ids, err := e.expandSubtree(ctx, kind, []int64{id}, false)
	if err != nil {
		return nil, err
	}
	related, err := e.collect(ctx, kind, ids, edges, false)
	if err != nil {
		return nil, err
	}
	queries := []QueryDesc{{Kind: kind, Table: TableFor(kind), IDs: ids}}
	return append(queries, related...), nil
}

// treeKinds marks the materialized-path models. Their parent links are rows
// of the same table, which the relation registry cannot express, so targets
// of these kinds widen to their whole subtree before the relations are
// walked.
var treeKinds = map[model.EntityKind]bool{
	model.KindSuite: true,
	model.KindPlan:  true,
}

// subtreeQuery returns the materialized-path expansion statement for a tree
// kind, or "" when the kind carries no subtree.
func subtreeQuery(kind model.EntityKind, deletedRows bool) string {
	if !treeKinds[kind] {
		return ""
	}
	table := TableFor(kind)
	deletedCond := "NOT d.is_deleted"
	if deletedRows {
		deletedCond = "d.is_deleted"
	}
	return fmt.Sprintf(
		`SELECT DISTINCT d.id FROM %s d
		JOIN %s r ON d.tree_id = r.tree_id AND (d.id = r.id OR d.path LIKE r.path || '.%%')
		WHERE r.id = ANY($1) AND %s`, table, table, deletedCond)
}

func (e *Engine) expandSubtree(ctx context.Context, kind model.EntityKind, ids []int64, deletedRows bool) ([]int64, error) {
	query := subtreeQuery(kind, deletedRows)
	if query == "" || len(ids) == 0 {
		return ids, nil
	}
	var expanded []int64
	if err := e.db.SelectContext(ctx, &expanded, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to expand %s subtree: %w", TableFor(kind), err)
	}
	return expanded, nil
}

// collect walks the frozen relation edges to a fixpoint, resolving the id
// set of every related model. When deletedRows is true the walk discovers
// rows through the deleted-objects manager (is_deleted = true), which the
// recovery flow uses.
func (e *Engine) collect(ctx context.Context, rootKind model.EntityKind, rootIDs []int64, edges []Relation, deletedRows bool) ([]QueryDesc, error) {
	idsByKind := map[model.EntityKind][]int64{rootKind: rootIDs}
	resolved := make(map[model.EntityKind]bool)

	// Edges reference parents that may themselves be discovered children;
	// iterate to a fixpoint.
	for changed := true; changed; {
		changed = false
		for _, rel := range edges {
			if resolved[rel.Child] {
				continue
			}
			parentIDs, ok := idsByKind[rel.Parent]
			if !ok {
				continue
			}
			childIDs, err := e.childIDs(ctx, rel, parentIDs, deletedRows)
			if err != nil {
				return nil, err
			}
			idsByKind[rel.Child] = childIDs
			resolved[rel.Child] = true
			changed = true
		}
	}

	var out []QueryDesc
	for _, rel := range edges {
		if ids, ok := idsByKind[rel.Child]; ok && resolved[rel.Child] {
			out = append(out, QueryDesc{Kind: rel.Child, Table: rel.Table, IDs: ids})
			resolved[rel.Child] = false // emit once
		}
	}
	return out, nil
}

func (e *Engine) childIDs(ctx context.Context, rel Relation, parentIDs []int64, deletedRows bool) ([]int64, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	deletedCond := "NOT is_deleted"
	if deletedRows {
		deletedCond = "is_deleted"
	}

	var query string
	var args []interface{}
	if rel.Generic {
		query = fmt.Sprintf(
			`SELECT id FROM %s WHERE content_type = $1 AND object_id = ANY($2) AND %s`,
			rel.Table, deletedCond)
		args = []interface{}{string(rel.Parent), pq.Array(parentIDs)}
	} else {
		query = fmt.Sprintf(
			`SELECT id FROM %s WHERE %s = ANY($1) AND %s`,
			rel.Table, rel.FK, deletedCond)
		args = []interface{}{pq.Array(parentIDs)}
	}

	var ids []int64
	if err := e.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to resolve %s closure: %w", rel.Table, err)
	}
	return ids, nil
}

func (e *Engine) walkAndUpdate(ctx context.Context, kind model.EntityKind, ids []int64, edges []Relation, deletedRows bool, stmtTemplate string) error {
	closure, err := e.collect(ctx, kind, ids, edges, deletedRows)
	if err != nil {
		return err
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf(stmtTemplate, TableFor(kind))
	if _, err := tx.ExecContext(ctx, stmt, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to update %s rows: %w", TableFor(kind), err)
	}
	for _, q := range closure {
		if len(q.IDs) == 0 {
			continue
		}
		stmt := fmt.Sprintf(stmtTemplate, q.Table)
		if _, err := tx.ExecContext(ctx, stmt, pq.Array(q.IDs)); err != nil {
			return fmt.Errorf("failed to update %s rows: %w", q.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}
