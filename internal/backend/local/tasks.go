package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// FetchTasks retrieves all tasks for a user ordered by order_index,
// with checklists attached.
func (b *Backend) FetchTasks(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := b.db.QueryxContext(ctx,
		"SELECT * FROM tasks WHERE user_id = ? ORDER BY order_index", userID)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		checklist, err := b.checklistFor(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Checklist = checklist
	}

	return tasks, nil
}

// CreateTask inserts a new task, stamping id, timestamps, defaults, and
// an order index strictly above the user's current maximum when none is
// provided. The stored record is returned and an INSERT event emitted.
func (b *Backend) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	if strings.TrimSpace(task.Title) == "" {
		return model.Task{}, fmt.Errorf("task title must not be empty")
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = model.StatusInbox
	}
	if !model.ValidPriority(task.Priority) {
		task.Priority = model.PriorityMedium
	}
	if task.Status == model.StatusCompleted && task.CompletedAt == nil {
		task.CompletedAt = &now
	}

	if task.OrderIndex == 0 {
		var maxOrder sql.NullInt64
		err := b.db.GetContext(ctx, &maxOrder,
			"SELECT MAX(order_index) FROM tasks WHERE user_id = ?", task.UserID)
		if err != nil {
			return model.Task{}, fmt.Errorf("getting max order_index: %w", err)
		}
		if maxOrder.Valid {
			task.OrderIndex = maxOrder.Int64 + 1
		}
	}

	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return model.Task{}, fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, user_id, project_id, section_id, title, description,
			due_date, scheduled_time, estimated_duration,
			priority, status, tags, color, repeat_rule,
			order_index, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.ProjectID, task.SectionID, task.Title, task.Description,
		task.DueDate, task.ScheduledTime, task.EstimatedDuration,
		task.Priority, task.Status, string(tags), task.Color, task.RepeatRule,
		task.OrderIndex, task.CompletedAt, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("creating task: %w", err)
	}

	for i := range task.Checklist {
		task.Checklist[i].TaskID = task.ID
		if err := b.insertChecklistItem(ctx, &task.Checklist[i]); err != nil {
			return model.Task{}, err
		}
	}

	stored := task
	b.hub.emit(task.UserID, backend.ChangeEvent{
		Table: backend.TableTasks,
		Type:  backend.EventInsert,
		Task:  &stored,
	})

	return task, nil
}

// UpdateTask merges a partial patch onto the stored record, refreshes
// updated_at, and emits an UPDATE event carrying old and new rows.
func (b *Backend) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	old, err := b.taskByID(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	task := old
	patch.Apply(&task, time.Now().UTC())
	if strings.TrimSpace(task.Title) == "" {
		return model.Task{}, fmt.Errorf("task title must not be empty")
	}

	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return model.Task{}, fmt.Errorf("marshaling tags: %w", err)
	}

	result, err := b.db.ExecContext(ctx, `
		UPDATE tasks SET
			project_id = ?, section_id = ?, title = ?, description = ?,
			due_date = ?, scheduled_time = ?, estimated_duration = ?,
			priority = ?, status = ?, tags = ?, color = ?, repeat_rule = ?,
			order_index = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		task.ProjectID, task.SectionID, task.Title, task.Description,
		task.DueDate, task.ScheduledTime, task.EstimatedDuration,
		task.Priority, task.Status, string(tags), task.Color, task.RepeatRule,
		task.OrderIndex, task.CompletedAt, task.UpdatedAt,
		id,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("updating task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return model.Task{}, backend.ErrNotFound
	}

	task.Checklist, err = b.checklistFor(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	oldCopy, newCopy := old, task
	b.hub.emit(task.UserID, backend.ChangeEvent{
		Table:   backend.TableTasks,
		Type:    backend.EventUpdate,
		Task:    &newCopy,
		OldTask: &oldCopy,
	})

	return task, nil
}

// DeleteTask removes a task (hard delete; the checklist cascades) and
// emits a DELETE event carrying the old row.
func (b *Backend) DeleteTask(ctx context.Context, id string) error {
	old, err := b.taskByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}

	oldCopy := old
	b.hub.emit(old.UserID, backend.ChangeEvent{
		Table:   backend.TableTasks,
		Type:    backend.EventDelete,
		OldTask: &oldCopy,
	})

	return nil
}

// taskByID retrieves a single task without its checklist.
func (b *Backend) taskByID(ctx context.Context, id string) (model.Task, error) {
	rows, err := b.db.QueryxContext(ctx, "SELECT * FROM tasks WHERE id = ?", id)
	if err != nil {
		return model.Task{}, fmt.Errorf("querying task %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Task{}, err
		}
		return model.Task{}, backend.ErrNotFound
	}
	return scanTask(rows)
}

// AddChecklistItem appends an item to a task's checklist, defaulting its
// order to max+1 within the parent, and emits an UPDATE for the task.
func (b *Backend) AddChecklistItem(ctx context.Context, item model.ChecklistItem) (model.ChecklistItem, error) {
	if strings.TrimSpace(item.Text) == "" {
		return model.ChecklistItem{}, fmt.Errorf("checklist item text must not be empty")
	}
	if err := b.insertChecklistItem(ctx, &item); err != nil {
		return model.ChecklistItem{}, err
	}
	b.emitTaskUpdate(ctx, item.TaskID)
	return item, nil
}

// UpdateChecklistItem updates an item's text, done flag, and order.
func (b *Backend) UpdateChecklistItem(ctx context.Context, item model.ChecklistItem) error {
	result, err := b.db.ExecContext(ctx,
		"UPDATE checklist_items SET text = ?, done = ?, sort_order = ? WHERE id = ?",
		item.Text, boolToInt(item.Done), item.Order, item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating checklist item %s: %w", item.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return backend.ErrNotFound
	}
	b.emitTaskUpdate(ctx, item.TaskID)
	return nil
}

// DeleteChecklistItem removes an item from a task's checklist.
func (b *Backend) DeleteChecklistItem(ctx context.Context, taskID, id string) error {
	result, err := b.db.ExecContext(ctx, "DELETE FROM checklist_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting checklist item %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return backend.ErrNotFound
	}
	b.emitTaskUpdate(ctx, taskID)
	return nil
}

func (b *Backend) insertChecklistItem(ctx context.Context, item *model.ChecklistItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.CreatedAt = time.Now().UTC()

	if item.Order == 0 {
		var maxOrder sql.NullInt64
		err := b.db.GetContext(ctx, &maxOrder,
			"SELECT MAX(sort_order) FROM checklist_items WHERE task_id = ?", item.TaskID)
		if err != nil {
			return fmt.Errorf("getting max checklist order: %w", err)
		}
		if maxOrder.Valid {
			item.Order = maxOrder.Int64 + 1
		}
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO checklist_items (id, task_id, text, done, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.TaskID, item.Text, boolToInt(item.Done), item.Order, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding checklist item: %w", err)
	}
	return nil
}

// emitTaskUpdate re-reads a task and broadcasts it as an UPDATE event,
// used after checklist writes that do not touch the task row itself.
func (b *Backend) emitTaskUpdate(ctx context.Context, taskID string) {
	task, err := b.taskByID(ctx, taskID)
	if err != nil {
		return
	}
	task.Checklist, _ = b.checklistFor(ctx, taskID)
	b.hub.emit(task.UserID, backend.ChangeEvent{
		Table: backend.TableTasks,
		Type:  backend.EventUpdate,
		Task:  &task,
	})
}

func (b *Backend) checklistFor(ctx context.Context, taskID string) ([]model.ChecklistItem, error) {
	rows, err := b.db.QueryxContext(ctx,
		"SELECT * FROM checklist_items WHERE task_id = ? ORDER BY sort_order", taskID)
	if err != nil {
		return nil, fmt.Errorf("querying checklist items: %w", err)
	}
	defer rows.Close()

	var items []model.ChecklistItem
	for rows.Next() {
		var (
			item    model.ChecklistItem
			doneInt int
		)
		err := rows.Scan(
			&item.ID, &item.TaskID, &item.Text, &doneInt,
			&item.Order, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning checklist item row: %w", err)
		}
		item.Done = doneInt != 0
		items = append(items, item)
	}
	return items, rows.Err()
}

// scanTask scans a task row in table column order.
func scanTask(rows *sqlx.Rows) (model.Task, error) {
	var (
		task        model.Task
		projectID   *string
		sectionID   *string
		dueDate     *time.Time
		completedAt *time.Time
		tagsJSON    string
	)

	err := rows.Scan(
		&task.ID, &task.UserID, &projectID, &sectionID, &task.Title, &task.Description,
		&dueDate, &task.ScheduledTime, &task.EstimatedDuration,
		&task.Priority, &task.Status, &tagsJSON, &task.Color, &task.RepeatRule,
		&task.OrderIndex, &completedAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("scanning task row: %w", err)
	}

	task.ProjectID = projectID
	task.SectionID = sectionID
	task.DueDate = dueDate
	task.CompletedAt = completedAt

	if tagsJSON != "" && tagsJSON != "[]" {
		if err := json.Unmarshal([]byte(tagsJSON), &task.Tags); err != nil {
			return model.Task{}, fmt.Errorf("unmarshaling tags: %w", err)
		}
	}

	return task, nil
}
