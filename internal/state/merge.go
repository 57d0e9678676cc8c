package state

import (
	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// NewerWins is the conflict policy for feed updates: the incoming record
// replaces the local copy unless the local copy carries a strictly later
// UpdatedAt, in which case the local (more recent) write is kept. It is a
// pure function so the policy stays testable in isolation.
func NewerWins(local, incoming model.Task) model.Task {
	if local.UpdatedAt.After(incoming.UpdatedAt) {
		return local
	}
	// A replaced record was acknowledged by the backend at some point.
	incoming.SyncState = model.SyncCommitted
	return incoming
}

// ApplyChange merges an externally sourced change event into the local
// collections. Events are applied in delivery order:
//
//   - INSERT appends the record; an id already held locally is ignored.
//   - UPDATE resolves against the local copy via NewerWins; an unknown id
//     is stored as-is, since the record evidently exists remotely.
//   - DELETE removes the matching record; absence is a silent no-op.
func (s *Store) ApplyChange(ev backend.ChangeEvent) {
	switch ev.Table {
	case backend.TableTasks:
		s.applyTaskChange(ev)
	case backend.TableProjects:
		s.applyProjectChange(ev)
	case backend.TableSections:
		s.applySectionChange(ev)
	}
}

func (s *Store) applyTaskChange(ev backend.ChangeEvent) {
	switch ev.Type {
	case backend.EventInsert:
		if ev.Task == nil {
			return
		}
		t := *ev.Task
		t.SyncState = model.SyncCommitted
		s.AddTask(t)

	case backend.EventUpdate:
		if ev.Task == nil {
			return
		}
		incoming := *ev.Task
		s.mu.Lock()
		if i := s.indexOfTask(incoming.ID); i >= 0 {
			s.tasks[i] = NewerWins(s.tasks[i], incoming)
		} else {
			incoming.SyncState = model.SyncCommitted
			s.tasks = append(s.tasks, incoming)
		}
		s.mu.Unlock()
		s.notify()

	case backend.EventDelete:
		if ev.OldTask == nil {
			return
		}
		s.DeleteTask(ev.OldTask.ID)
	}
}

func (s *Store) applyProjectChange(ev backend.ChangeEvent) {
	switch ev.Type {
	case backend.EventInsert:
		if ev.Project != nil {
			s.AddProject(*ev.Project)
		}
	case backend.EventUpdate:
		if ev.Project == nil {
			return
		}
		incoming := *ev.Project
		s.mu.Lock()
		if i := s.indexOfProject(incoming.ID); i >= 0 {
			if !s.projects[i].UpdatedAt.After(incoming.UpdatedAt) {
				s.projects[i] = incoming
			}
		} else {
			s.projects = append(s.projects, incoming)
		}
		s.mu.Unlock()
		s.notify()
	case backend.EventDelete:
		if ev.OldProject != nil {
			s.DeleteProject(ev.OldProject.ID)
		}
	}
}

func (s *Store) applySectionChange(ev backend.ChangeEvent) {
	switch ev.Type {
	case backend.EventInsert:
		if ev.Section == nil {
			return
		}
		s.mu.Lock()
		exists := false
		for i := range s.sections {
			if s.sections[i].ID == ev.Section.ID {
				exists = true
				break
			}
		}
		if !exists {
			s.sections = append(s.sections, *ev.Section)
		}
		s.mu.Unlock()
		if !exists {
			s.notify()
		}

	case backend.EventUpdate:
		if ev.Section == nil {
			return
		}
		s.mu.Lock()
		found := false
		for i := range s.sections {
			if s.sections[i].ID == ev.Section.ID {
				if !s.sections[i].UpdatedAt.After(ev.Section.UpdatedAt) {
					s.sections[i] = *ev.Section
				}
				found = true
				break
			}
		}
		if !found {
			s.sections = append(s.sections, *ev.Section)
		}
		s.mu.Unlock()
		s.notify()

	case backend.EventDelete:
		if ev.OldSection == nil {
			return
		}
		s.mu.Lock()
		for i := range s.sections {
			if s.sections[i].ID == ev.OldSection.ID {
				s.sections = append(s.sections[:i], s.sections[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		s.notify()
	}
}
