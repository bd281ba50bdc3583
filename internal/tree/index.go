package tree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
)

// Node is the tree-relevant projection of a suite or plan row.
type Node struct {
	ID        int64  `db:"id"`
	ProjectID int64  `db:"project_id"`
	ParentID  *int64 `db:"parent_id"`
	Name      string `db:"name"`
	TreeID    int64  `db:"tree_id"`
	Path      string `db:"path"`
	IsArchive bool   `db:"is_archive"`
}

// Index answers ancestor/descendant queries for one tree-bearing table.
// The table must carry (id, project_id, parent_id, name, tree_id, path,
// is_archive, is_deleted) columns.
type Index struct {
	db    *sqlx.DB
	table string
}

// NewIndex creates an index over the given table.
func NewIndex(db *sqlx.DB, table string) *Index {
	return &Index{db: db, table: table}
}

// Table returns the indexed table name.
func (ix *Index) Table() string {
	return ix.table
}

// Get loads a single live node.
func (ix *Index) Get(ctx context.Context, id int64) (*Node, error) {
	var n Node
	query := fmt.Sprintf(
		`SELECT id, project_id, parent_id, name, tree_id, path, is_archive
		 FROM %s WHERE id = $1 AND NOT is_deleted`, ix.table)
	err := ix.db.GetContext(ctx, &n, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(ix.table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return &n, nil
}

// Ancestors returns the chain root→node, ordered by depth, including the
// node itself.
func (ix *Index) Ancestors(ctx context.Context, id int64) ([]*Node, error) {
	node, err := ix.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := ChainIDs(node.Path)

	var nodes []*Node
	query := fmt.Sprintf(
		`SELECT id, project_id, parent_id, name, tree_id, path, is_archive
		 FROM %s WHERE id = ANY($1) AND NOT is_deleted ORDER BY path`, ix.table)
	if err := ix.db.SelectContext(ctx, &nodes, query, int64Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load ancestors: %w", err)
	}
	return nodes, nil
}

// Descendants returns the subtree rooted at id in depth-first order.
func (ix *Index) Descendants(ctx context.Context, id int64, includeSelf bool) ([]*Node, error) {
	node, err := ix.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var nodes []*Node
	query := fmt.Sprintf(
		`SELECT id, project_id, parent_id, name, tree_id, path, is_archive
		 FROM %s
		 WHERE tree_id = $1 AND (path = $2 OR path LIKE $3) AND NOT is_deleted
		 ORDER BY path`, ix.table)
	err = ix.db.SelectContext(ctx, &nodes, query, node.TreeID, node.Path, node.Path+".%")
	if err != nil {
		return nil, fmt.Errorf("failed to load descendants: %w", err)
	}

	if !includeSelf {
		filtered := nodes[:0]
		for _, n := range nodes {
			if n.ID != id {
				filtered = append(filtered, n)
			}
		}
		nodes = filtered
	}
	return nodes, nil
}

// ByTreeIDs returns all live nodes in the given components, depth-first.
func (ix *Index) ByTreeIDs(ctx context.Context, treeIDs []int64) ([]*Node, error) {
	if len(treeIDs) == 0 {
		return nil, nil
	}
	var nodes []*Node
	query := fmt.Sprintf(
		`SELECT id, project_id, parent_id, name, tree_id, path, is_archive
		 FROM %s WHERE tree_id = ANY($1) AND NOT is_deleted ORDER BY path`, ix.table)
	if err := ix.db.SelectContext(ctx, &nodes, query, int64Array(treeIDs)); err != nil {
		return nil, fmt.Errorf("failed to load trees: %w", err)
	}
	return nodes, nil
}

// Reparent moves a node (and its subtree) under newParent, rewriting tree_id
// and path atomically. A nil newParent makes the node a root of its own tree.
// Fails with InvalidMove when newParent lies inside the subtree or is
// archived.
func (ix *Index) Reparent(ctx context.Context, tx *sqlx.Tx, id int64, newParent *int64) error {
	node, err := ix.getForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	newTreeID := node.ID
	newPath := ChildPath("", node.ID)
	if newParent != nil {
		parent, err := ix.getForUpdate(ctx, tx, *newParent)
		if err != nil {
			return err
		}
		if parent.ProjectID != node.ProjectID {
			return apperr.New(apperr.CodeTestPlanParent, "parent belongs to another project")
		}
		if parent.IsArchive {
			return apperr.InvalidMove("cannot move under an archived node")
		}
		if parent.TreeID == node.TreeID && IsAncestorPath(node.Path, parent.Path) {
			return apperr.InvalidMove("cannot move a node under its own descendant")
		}
		newTreeID = parent.TreeID
		newPath = ChildPath(parent.Path, node.ID)
	}

	// Lock the whole subtree before rewriting.
	lockQuery := fmt.Sprintf(
		`SELECT id FROM %s
		 WHERE tree_id = $1 AND (path = $2 OR path LIKE $3) AND NOT is_deleted
		 FOR UPDATE`, ix.table)
	if _, err := tx.ExecContext(ctx, lockQuery, node.TreeID, node.Path, node.Path+".%"); err != nil {
		return fmt.Errorf("failed to lock subtree: %w", err)
	}

	rewrite := fmt.Sprintf(
		`UPDATE %s
		 SET tree_id = $1,
		     path = $2 || substr(path, $3),
		     parent_id = CASE WHEN id = $4 THEN $5 ELSE parent_id END
		 WHERE tree_id = $6 AND (path = $7 OR path LIKE $8)`, ix.table)
	_, err = tx.ExecContext(ctx, rewrite,
		newTreeID, newPath, len(node.Path)+1, node.ID, newParent,
		node.TreeID, node.Path, node.Path+".%")
	if err != nil {
		return fmt.Errorf("failed to rewrite subtree paths: %w", err)
	}
	return nil
}

// Breadcrumbs produces the ordered {id, title, parent} chain root→node.
// Titles are the raw node names; callers compose richer titles.
func (ix *Index) Breadcrumbs(ctx context.Context, id int64) ([]Breadcrumb, error) {
	chain, err := ix.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	crumbs := make([]Breadcrumb, len(chain))
	for i, n := range chain {
		crumbs[i] = Breadcrumb{ID: n.ID, Title: n.Name, ParentID: n.ParentID}
	}
	return crumbs, nil
}

// Breadcrumb is one element of an ancestor chain.
type Breadcrumb struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ParentID *int64 `json:"parent"`
}

func (ix *Index) getForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*Node, error) {
	var n Node
	query := fmt.Sprintf(
		`SELECT id, project_id, parent_id, name, tree_id, path, is_archive
		 FROM %s WHERE id = $1 AND NOT is_deleted FOR UPDATE`, ix.table)
	err := tx.GetContext(ctx, &n, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(ix.table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock node: %w", err)
	}
	return &n, nil
}
