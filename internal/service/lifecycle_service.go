package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/cascade"
	"github.com/yuriguchi/testy/internal/events"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// LifecycleService drives the soft-delete and archive flows for every entity
// kind through the cascade engine: preview, token-bound commit, recovery,
// unarchive and permanent removal.
type LifecycleService struct {
	db       *sqlx.DB
	engine   *cascade.Engine
	projects *repository.ProjectRepository
	producer *events.Producer
	logger   *slog.Logger
}

// NewLifecycleService creates a lifecycle service.
func NewLifecycleService(db *sqlx.DB, engine *cascade.Engine,
	projects *repository.ProjectRepository, producer *events.Producer, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{db: db, engine: engine, projects: projects, producer: producer, logger: logger}
}

// PreviewDelete computes the closure that a delete commit would soft-delete.
func (s *LifecycleService) PreviewDelete(ctx context.Context, kind model.EntityKind, id int64) (*cascade.PreviewResult, error) {
	return s.engine.Preview(ctx, kind, id, cascade.ModeDelete)
}

// PreviewArchive computes the closure that an archive commit would mark.
func (s *LifecycleService) PreviewArchive(ctx context.Context, kind model.EntityKind, id int64) (*cascade.PreviewResult, error) {
	return s.engine.Preview(ctx, kind, id, cascade.ModeArchive)
}

// CommitDelete soft-deletes the target and its closure, preferring the
// previewed queries bound to token.
func (s *LifecycleService) CommitDelete(ctx context.Context, userID int64, kind model.EntityKind, id int64, token string) error {
	projectID, err := s.projectOf(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.engine.Commit(ctx, kind, id, cascade.ModeDelete, token); err != nil {
		return err
	}
	s.recount(ctx, projectID)
	s.producer.Activity(ctx, events.Event{
		Verb: events.VerbEntityDeleted, ProjectID: projectID, ActorID: userID, TargetID: id,
		Payload: map[string]interface{}{"model": string(kind)},
	})
	s.logger.Info("entity deleted", "kind", kind, "id", id)
	return nil
}

// CommitArchive archives the target and the archive-capable closure.
func (s *LifecycleService) CommitArchive(ctx context.Context, userID int64, kind model.EntityKind, id int64, token string) error {
	projectID, err := s.projectOf(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.engine.Commit(ctx, kind, id, cascade.ModeArchive, token); err != nil {
		return err
	}
	s.recount(ctx, projectID)
	s.producer.Activity(ctx, events.Event{
		Verb: events.VerbEntityArchived, ProjectID: projectID, ActorID: userID, TargetID: id,
		Payload: map[string]interface{}{"model": string(kind)},
	})
	s.logger.Info("entity archived", "kind", kind, "id", id)
	return nil
}

// Recover un-deletes the rows and their cascading closure discovered among
// deleted rows.
func (s *LifecycleService) Recover(ctx context.Context, kind model.EntityKind, ids []int64) error {
	if len(ids) == 0 {
		return apperr.Validation("ids are required")
	}
	if err := s.engine.Recover(ctx, kind, ids); err != nil {
		return err
	}
	s.recountAll(ctx, kind, ids)
	s.logger.Info("entities recovered", "kind", kind, "count", len(ids))
	return nil
}

// RestoreArchived clears archival on the rows and their archive closure.
func (s *LifecycleService) RestoreArchived(ctx context.Context, kind model.EntityKind, ids []int64) error {
	if len(ids) == 0 {
		return apperr.Validation("ids are required")
	}
	if err := s.engine.RestoreArchived(ctx, kind, ids); err != nil {
		return err
	}
	s.recountAll(ctx, kind, ids)
	s.logger.Info("entities unarchived", "kind", kind, "count", len(ids))
	return nil
}

// DeletePermanently hard-deletes rows that are already soft-deleted.
func (s *LifecycleService) DeletePermanently(ctx context.Context, kind model.EntityKind, ids []int64) error {
	if len(ids) == 0 {
		return apperr.Validation("ids are required")
	}
	if err := s.engine.DeletePermanently(ctx, kind, ids); err != nil {
		return err
	}
	s.logger.Info("entities permanently removed", "kind", kind, "count", len(ids))
	return nil
}

// ListDeleted returns the soft-deleted rows of one kind, for the trash views.
func (s *LifecycleService) ListDeleted(ctx context.Context, kind model.EntityKind, projectID int64) ([]DeletedRow, error) {
	table := cascade.TableFor(kind)
	if table == "" {
		return nil, apperr.Validation("unknown model")
	}
	query := fmt.Sprintf(`SELECT id, name FROM %s WHERE is_deleted`, table)
	args := []interface{}{}
	if kind != model.KindProject {
		query += ` AND project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY id`

	var rows []DeletedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list deleted rows: %w", err)
	}
	return rows, nil
}

// DeletedRow is one trash listing entry.
type DeletedRow struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// projectOf resolves the owning project of a row for recount and events.
func (s *LifecycleService) projectOf(ctx context.Context, kind model.EntityKind, id int64) (int64, error) {
	if kind == model.KindProject {
		return id, nil
	}
	table := cascade.TableFor(kind)
	if table == "" {
		return 0, apperr.Validation("unknown model")
	}
	var projectID int64
	query := fmt.Sprintf(`SELECT project_id FROM %s WHERE id = $1`, table)
	if err := s.db.GetContext(ctx, &projectID, query, id); err != nil {
		return 0, apperr.NotFound(string(kind))
	}
	return projectID, nil
}

func (s *LifecycleService) recount(ctx context.Context, projectID int64) {
	if err := s.projects.Recount(ctx, s.db, projectID); err != nil {
		s.logger.Error("failed to recount project statistics", "project_id", projectID, "error", err)
	}
}

func (s *LifecycleService) recountAll(ctx context.Context, kind model.EntityKind, ids []int64) {
	if kind == model.KindProject {
		return
	}
	seen := make(map[int64]bool)
	for _, id := range ids {
		projectID, err := s.projectOf(ctx, kind, id)
		if err != nil || seen[projectID] {
			continue
		}
		seen[projectID] = true
		s.recount(ctx, projectID)
	}
}
