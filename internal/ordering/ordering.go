// Package ordering implements deterministic placement of items within an
// ordered collection: insertion indexes, single-item drag moves, and the
// render-time sort. All functions are pure.
package ordering

import (
	"slices"
	"strings"
	"time"

	"github.com/avhall/taskdeck/internal/model"
)

// Next returns an order index strictly greater than the current maximum
// within the scope, or 0 when the scope is empty. New items therefore
// sort last without re-sequencing existing ones.
func Next(existing []int64) int64 {
	if len(existing) == 0 {
		return 0
	}
	max := existing[0]
	for _, v := range existing[1:] {
		if v > max {
			max = v
		}
	}
	return max + 1
}

// NextAt returns a creation-time order index derived from now (UnixMilli),
// clamped to stay strictly above the current maximum. The clock gives
// locally unique, approximately insertion-ordered indexes; the clamp keeps
// the invariant even when the clock runs behind existing values.
func NextAt(existing []int64, now time.Time) int64 {
	candidate := now.UnixMilli()
	if len(existing) == 0 {
		return candidate
	}
	if next := Next(existing); candidate < next {
		return next
	}
	return candidate
}

// Move removes the item at src, reinserts it at dst, and reassigns every
// item's order field to its positional index 0..n-1 via setOrder. The
// relative order of all items other than the moved one is preserved.
// Out-of-range indexes leave items untouched.
func Move[T any](items []T, src, dst int, setOrder func(*T, int64)) []T {
	n := len(items)
	if src < 0 || src >= n || dst < 0 || dst >= n {
		return items
	}
	if src != dst {
		moved := items[src]
		items = slices.Delete(items, src, src+1)
		items = slices.Insert(items, dst, moved)
	}
	for i := range items {
		setOrder(&items[i], int64(i))
	}
	return items
}

// MoveTasks applies Move to a task slice, rewriting OrderIndex.
func MoveTasks(tasks []model.Task, src, dst int) []model.Task {
	return Move(tasks, src, dst, func(t *model.Task, o int64) { t.OrderIndex = o })
}

// MoveChecklist applies Move to a checklist, rewriting Order.
func MoveChecklist(items []model.ChecklistItem, src, dst int) []model.ChecklistItem {
	return Move(items, src, dst, func(c *model.ChecklistItem, o int64) { c.Order = o })
}

// MoveSections applies Move to a section slice, rewriting Order.
func MoveSections(sections []model.Section, src, dst int) []model.Section {
	return Move(sections, src, dst, func(s *model.Section, o int64) { s.Order = o })
}

// SortForView orders tasks for rendering without mutating any stored
// order value: section scope first (per sectionOrder, unknown or absent
// sections last in the scopeless group), then tasks with a due date
// before those without, then earlier due dates, then OrderIndex. Ties
// break on CreatedAt and finally ID so the result is deterministic even
// when two items share an order index.
func SortForView(tasks []model.Task, sectionOrder map[string]int64) []model.Task {
	sorted := append([]model.Task(nil), tasks...)
	slices.SortStableFunc(sorted, func(a, b model.Task) int {
		if c := compareScope(a, b, sectionOrder); c != 0 {
			return c
		}
		if c := compareDueDate(a.DueDate, b.DueDate); c != 0 {
			return c
		}
		if a.OrderIndex != b.OrderIndex {
			if a.OrderIndex < b.OrderIndex {
				return -1
			}
			return 1
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sorted
}

func compareScope(a, b model.Task, sectionOrder map[string]int64) int {
	oa, ob := scopeRank(a.SectionID, sectionOrder), scopeRank(b.SectionID, sectionOrder)
	if oa < ob {
		return -1
	}
	if oa > ob {
		return 1
	}
	return 0
}

// scopeRank maps a task's section to a sort rank. Sectionless tasks and
// tasks pointing at a deleted section sort after all known sections.
func scopeRank(sectionID *string, sectionOrder map[string]int64) int64 {
	const last = int64(1)<<62 - 1
	if sectionID == nil {
		return last
	}
	if o, ok := sectionOrder[*sectionID]; ok {
		return o
	}
	return last
}

func compareDueDate(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
