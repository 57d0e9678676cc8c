package local

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// FetchProjects retrieves all projects for a user ordered by order_index.
func (b *Backend) FetchProjects(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := b.db.QueryxContext(ctx,
		"SELECT * FROM projects WHERE user_id = ? ORDER BY order_index", userID)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		err := rows.Scan(
			&p.ID, &p.UserID, &p.Name, &p.Color,
			&p.OrderIndex, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateProject inserts a new project and emits an INSERT event.
func (b *Backend) CreateProject(ctx context.Context, project model.Project) (model.Project, error) {
	if strings.TrimSpace(project.Name) == "" {
		return model.Project{}, fmt.Errorf("project name must not be empty")
	}
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	if project.OrderIndex == 0 {
		var maxOrder sql.NullInt64
		err := b.db.GetContext(ctx, &maxOrder,
			"SELECT MAX(order_index) FROM projects WHERE user_id = ?", project.UserID)
		if err != nil {
			return model.Project{}, fmt.Errorf("getting max project order: %w", err)
		}
		if maxOrder.Valid {
			project.OrderIndex = maxOrder.Int64 + 1
		}
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, color, order_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.UserID, project.Name, project.Color,
		project.OrderIndex, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("creating project: %w", err)
	}

	stored := project
	b.hub.emit(project.UserID, backend.ChangeEvent{
		Table:   backend.TableProjects,
		Type:    backend.EventInsert,
		Project: &stored,
	})

	return project, nil
}

// UpdateProject merges a partial patch onto the stored project and emits
// an UPDATE event.
func (b *Backend) UpdateProject(ctx context.Context, id string, patch model.ProjectPatch) (model.Project, error) {
	old, err := b.projectByID(ctx, id)
	if err != nil {
		return model.Project{}, err
	}

	project := old
	patch.Apply(&project, time.Now().UTC())
	if strings.TrimSpace(project.Name) == "" {
		return model.Project{}, fmt.Errorf("project name must not be empty")
	}

	result, err := b.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, color = ?, order_index = ?, updated_at = ?
		WHERE id = ?`,
		project.Name, project.Color, project.OrderIndex, project.UpdatedAt, id,
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("updating project %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return model.Project{}, backend.ErrNotFound
	}

	oldCopy, newCopy := old, project
	b.hub.emit(project.UserID, backend.ChangeEvent{
		Table:      backend.TableProjects,
		Type:       backend.EventUpdate,
		Project:    &newCopy,
		OldProject: &oldCopy,
	})

	return project, nil
}

// DeleteProject removes a project and emits a DELETE event. Tasks keep
// their project_id; orphaned references are tolerated.
func (b *Backend) DeleteProject(ctx context.Context, id string) error {
	old, err := b.projectByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}

	oldCopy := old
	b.hub.emit(old.UserID, backend.ChangeEvent{
		Table:      backend.TableProjects,
		Type:       backend.EventDelete,
		OldProject: &oldCopy,
	})

	return nil
}

func (b *Backend) projectByID(ctx context.Context, id string) (model.Project, error) {
	var p model.Project
	err := b.db.QueryRowxContext(ctx, "SELECT * FROM projects WHERE id = ?", id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Color,
		&p.OrderIndex, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.Project{}, backend.ErrNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("getting project %s: %w", id, err)
	}
	return p, nil
}
