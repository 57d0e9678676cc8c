package remote

import (
	"context"
	"fmt"
	"net/url"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// Backend implements backend.Client against the hosted task service.
type Backend struct {
	client *httpClient
}

var _ backend.Client = (*Backend)(nil)

// New creates a remote backend for the service at baseURL. The apiKey
// identifies the application; per-user auth happens via the session
// endpoints.
func New(baseURL, apiKey string) *Backend {
	return &Backend{client: newHTTPClient(baseURL, apiKey)}
}

// Close releases nothing today; in-flight feed readers shut down with
// their contexts.
func (b *Backend) Close() error { return nil }

// FetchTasks retrieves all of the user's tasks ordered by order index.
func (b *Backend) FetchTasks(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	path := "/api/v1/tasks?user_id=" + url.QueryEscape(userID)
	if err := b.client.get(ctx, path, &tasks); err != nil {
		return nil, fmt.Errorf("fetching tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask stores a new task and returns the server-stamped record.
func (b *Backend) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	var stored model.Task
	if err := b.client.post(ctx, "/api/v1/tasks", task, &stored); err != nil {
		return model.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return stored, nil
}

// UpdateTask applies a partial update and returns the stored record.
func (b *Backend) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	var stored model.Task
	path := "/api/v1/tasks/" + url.PathEscape(id)
	if err := b.client.patch(ctx, path, taskPatchBody(patch), &stored); err != nil {
		return model.Task{}, fmt.Errorf("updating task %s: %w", id, err)
	}
	return stored, nil
}

// DeleteTask removes a task. The service deletes its checklist with it.
func (b *Backend) DeleteTask(ctx context.Context, id string) error {
	if err := b.client.delete(ctx, "/api/v1/tasks/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return nil
}

// AddChecklistItem appends an item to a task's checklist.
func (b *Backend) AddChecklistItem(ctx context.Context, item model.ChecklistItem) (model.ChecklistItem, error) {
	var stored model.ChecklistItem
	path := "/api/v1/tasks/" + url.PathEscape(item.TaskID) + "/checklist"
	if err := b.client.post(ctx, path, item, &stored); err != nil {
		return model.ChecklistItem{}, fmt.Errorf("adding checklist item: %w", err)
	}
	return stored, nil
}

// UpdateChecklistItem updates an item's text, done flag, and order.
func (b *Backend) UpdateChecklistItem(ctx context.Context, item model.ChecklistItem) error {
	path := "/api/v1/tasks/" + url.PathEscape(item.TaskID) +
		"/checklist/" + url.PathEscape(item.ID)
	if err := b.client.patch(ctx, path, item, nil); err != nil {
		return fmt.Errorf("updating checklist item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteChecklistItem removes an item from a task's checklist.
func (b *Backend) DeleteChecklistItem(ctx context.Context, taskID, id string) error {
	path := "/api/v1/tasks/" + url.PathEscape(taskID) +
		"/checklist/" + url.PathEscape(id)
	if err := b.client.delete(ctx, path); err != nil {
		return fmt.Errorf("deleting checklist item %s: %w", id, err)
	}
	return nil
}

// FetchProjects retrieves all of the user's projects.
func (b *Backend) FetchProjects(ctx context.Context, userID string) ([]model.Project, error) {
	var projects []model.Project
	path := "/api/v1/projects?user_id=" + url.QueryEscape(userID)
	if err := b.client.get(ctx, path, &projects); err != nil {
		return nil, fmt.Errorf("fetching projects: %w", err)
	}
	return projects, nil
}

// CreateProject stores a new project and returns the stamped record.
func (b *Backend) CreateProject(ctx context.Context, project model.Project) (model.Project, error) {
	var stored model.Project
	if err := b.client.post(ctx, "/api/v1/projects", project, &stored); err != nil {
		return model.Project{}, fmt.Errorf("creating project: %w", err)
	}
	return stored, nil
}

// UpdateProject applies a partial update and returns the stored record.
func (b *Backend) UpdateProject(ctx context.Context, id string, patch model.ProjectPatch) (model.Project, error) {
	var stored model.Project
	path := "/api/v1/projects/" + url.PathEscape(id)
	if err := b.client.patch(ctx, path, projectPatchBody(patch), &stored); err != nil {
		return model.Project{}, fmt.Errorf("updating project %s: %w", id, err)
	}
	return stored, nil
}

// DeleteProject removes a project. Tasks that referenced it keep their
// project id until the user reassigns them.
func (b *Backend) DeleteProject(ctx context.Context, id string) error {
	if err := b.client.delete(ctx, "/api/v1/projects/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	return nil
}

// FetchSections retrieves all of the user's sections.
func (b *Backend) FetchSections(ctx context.Context, userID string) ([]model.Section, error) {
	var sections []model.Section
	path := "/api/v1/sections?user_id=" + url.QueryEscape(userID)
	if err := b.client.get(ctx, path, &sections); err != nil {
		return nil, fmt.Errorf("fetching sections: %w", err)
	}
	return sections, nil
}

// CreateSection stores a new section and returns the stamped record.
func (b *Backend) CreateSection(ctx context.Context, section model.Section) (model.Section, error) {
	var stored model.Section
	if err := b.client.post(ctx, "/api/v1/sections", section, &stored); err != nil {
		return model.Section{}, fmt.Errorf("creating section: %w", err)
	}
	return stored, nil
}

// UpdateSection replaces a section's mutable fields.
func (b *Backend) UpdateSection(ctx context.Context, section model.Section) (model.Section, error) {
	var stored model.Section
	path := "/api/v1/sections/" + url.PathEscape(section.ID)
	if err := b.client.patch(ctx, path, section, &stored); err != nil {
		return model.Section{}, fmt.Errorf("updating section %s: %w", section.ID, err)
	}
	return stored, nil
}

// DeleteSection removes a section. Tasks in it become sectionless.
func (b *Backend) DeleteSection(ctx context.Context, id string) error {
	if err := b.client.delete(ctx, "/api/v1/sections/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("deleting section %s: %w", id, err)
	}
	return nil
}

// taskPatchBody converts a task patch into the sparse JSON body the
// service expects: absent keys are untouched, explicit nulls clear.
func taskPatchBody(patch model.TaskPatch) map[string]interface{} {
	body := make(map[string]interface{})
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Status != nil {
		body["status"] = *patch.Status
	}
	if patch.Priority != nil {
		body["priority"] = *patch.Priority
	}
	switch {
	case patch.ClearDueDate:
		body["due_date"] = nil
	case patch.DueDate != nil:
		body["due_date"] = *patch.DueDate
	}
	if patch.ScheduledTime != nil {
		body["scheduled_time"] = *patch.ScheduledTime
	}
	if patch.EstimatedDuration != nil {
		body["estimated_duration"] = *patch.EstimatedDuration
	}
	switch {
	case patch.ClearProject:
		body["project_id"] = nil
	case patch.ProjectID != nil:
		body["project_id"] = *patch.ProjectID
	}
	switch {
	case patch.ClearSection:
		body["section_id"] = nil
	case patch.SectionID != nil:
		body["section_id"] = *patch.SectionID
	}
	if patch.HasTags {
		body["tags"] = patch.Tags
	}
	if patch.Color != nil {
		body["color"] = *patch.Color
	}
	if patch.RepeatRule != nil {
		body["repeat_rule"] = *patch.RepeatRule
	}
	if patch.OrderIndex != nil {
		body["order_index"] = *patch.OrderIndex
	}
	return body
}

func projectPatchBody(patch model.ProjectPatch) map[string]interface{} {
	body := make(map[string]interface{})
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.Color != nil {
		body["color"] = *patch.Color
	}
	if patch.OrderIndex != nil {
		body["order_index"] = *patch.OrderIndex
	}
	return body
}
