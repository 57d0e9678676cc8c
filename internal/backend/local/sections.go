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

// FetchSections retrieves all sections for a user ordered by sort_order.
func (b *Backend) FetchSections(ctx context.Context, userID string) ([]model.Section, error) {
	rows, err := b.db.QueryxContext(ctx,
		"SELECT * FROM sections WHERE user_id = ? ORDER BY sort_order", userID)
	if err != nil {
		return nil, fmt.Errorf("querying sections: %w", err)
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// CreateSection inserts a new section and emits an INSERT event.
func (b *Backend) CreateSection(ctx context.Context, section model.Section) (model.Section, error) {
	if strings.TrimSpace(section.Name) == "" {
		return model.Section{}, fmt.Errorf("section name must not be empty")
	}
	if section.ID == "" {
		section.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now

	if section.Order == 0 {
		var maxOrder sql.NullInt64
		err := b.db.GetContext(ctx, &maxOrder,
			"SELECT MAX(sort_order) FROM sections WHERE user_id = ?", section.UserID)
		if err != nil {
			return model.Section{}, fmt.Errorf("getting max section order: %w", err)
		}
		if maxOrder.Valid {
			section.Order = maxOrder.Int64 + 1
		}
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO sections (id, user_id, name, sort_order, collapsed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		section.ID, section.UserID, section.Name, section.Order,
		boolToInt(section.Collapsed), section.CreatedAt, section.UpdatedAt,
	)
	if err != nil {
		return model.Section{}, fmt.Errorf("creating section: %w", err)
	}

	stored := section
	b.hub.emit(section.UserID, backend.ChangeEvent{
		Table:   backend.TableSections,
		Type:    backend.EventInsert,
		Section: &stored,
	})

	return section, nil
}

// UpdateSection replaces the stored section's mutable fields and emits
// an UPDATE event.
func (b *Backend) UpdateSection(ctx context.Context, section model.Section) (model.Section, error) {
	if strings.TrimSpace(section.Name) == "" {
		return model.Section{}, fmt.Errorf("section name must not be empty")
	}
	old, err := b.sectionByID(ctx, section.ID)
	if err != nil {
		return model.Section{}, err
	}

	section.UserID = old.UserID
	section.CreatedAt = old.CreatedAt
	section.UpdatedAt = time.Now().UTC()

	result, err := b.db.ExecContext(ctx, `
		UPDATE sections SET name = ?, sort_order = ?, collapsed = ?, updated_at = ?
		WHERE id = ?`,
		section.Name, section.Order, boolToInt(section.Collapsed),
		section.UpdatedAt, section.ID,
	)
	if err != nil {
		return model.Section{}, fmt.Errorf("updating section %s: %w", section.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return model.Section{}, backend.ErrNotFound
	}

	oldCopy, newCopy := old, section
	b.hub.emit(section.UserID, backend.ChangeEvent{
		Table:      backend.TableSections,
		Type:       backend.EventUpdate,
		Section:    &newCopy,
		OldSection: &oldCopy,
	})

	return section, nil
}

// DeleteSection removes a section and emits a DELETE event. Tasks keep
// their section_id and fall back to the sectionless group when rendered.
func (b *Backend) DeleteSection(ctx context.Context, id string) error {
	old, err := b.sectionByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, "DELETE FROM sections WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting section %s: %w", id, err)
	}

	oldCopy := old
	b.hub.emit(old.UserID, backend.ChangeEvent{
		Table:      backend.TableSections,
		Type:       backend.EventDelete,
		OldSection: &oldCopy,
	})

	return nil
}

func (b *Backend) sectionByID(ctx context.Context, id string) (model.Section, error) {
	rows, err := b.db.QueryxContext(ctx, "SELECT * FROM sections WHERE id = ?", id)
	if err != nil {
		return model.Section{}, fmt.Errorf("querying section %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Section{}, err
		}
		return model.Section{}, backend.ErrNotFound
	}
	return scanSection(rows)
}

func scanSection(rows interface {
	Scan(dest ...interface{}) error
}) (model.Section, error) {
	var (
		s            model.Section
		collapsedInt int
	)
	err := rows.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Order,
		&collapsedInt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return model.Section{}, fmt.Errorf("scanning section row: %w", err)
	}
	s.Collapsed = collapsedInt != 0
	return s, nil
}
