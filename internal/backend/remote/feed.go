package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// changePayload is the wire shape of a single change feed event.
type changePayload struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	New   json.RawMessage `json:"new"`
	Old   json.RawMessage `json:"old"`
}

// Subscribe opens the server-sent-events change feed for a user. Events
// are decoded and delivered on the returned channel, which closes when
// ctx is cancelled or the stream drops; callers resubscribe after a
// drop to resume.
func (b *Backend) Subscribe(ctx context.Context, userID string) (<-chan backend.ChangeEvent, error) {
	feedURL := b.client.baseURL + "/api/v1/changes?user_id=" + url.QueryEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating feed request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if b.client.apiKey != "" {
		req.Header.Set("X-Api-Key", b.client.apiKey)
	}
	if token := b.client.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// The stream outlives the default client timeout; use a dedicated
	// client and rely on ctx for cancellation.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening change feed: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, &backend.AuthError{Message: "change feed rejected the session"}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d opening change feed", resp.StatusCode)
	}

	events := make(chan backend.ChangeEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readEventStream(ctx, resp.Body, events)
	}()

	return events, nil
}

// readEventStream parses the text/event-stream wire format: "data:"
// lines accumulate until a blank line terminates an event. Comment
// lines (leading colon) are keepalives and ignored.
func readEventStream(ctx context.Context, body io.Reader, events chan<- backend.ChangeEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data.Len() > 0 {
				if event, ok := decodeChange([]byte(data.String())); ok {
					select {
					case events <- event:
					case <-ctx.Done():
						return
					}
				}
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		}
	}
}

// decodeChange converts a wire payload into a ChangeEvent. Unknown
// tables and malformed payloads are skipped; the feed must survive
// additions on the server side.
func decodeChange(data []byte) (backend.ChangeEvent, bool) {
	var payload changePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return backend.ChangeEvent{}, false
	}

	event := backend.ChangeEvent{
		Table: backend.Table(payload.Table),
		Type:  backend.EventType(payload.Type),
	}

	switch event.Type {
	case backend.EventInsert, backend.EventUpdate, backend.EventDelete:
	default:
		return backend.ChangeEvent{}, false
	}

	switch event.Table {
	case backend.TableTasks:
		if len(payload.New) > 0 {
			var task model.Task
			if json.Unmarshal(payload.New, &task) == nil {
				event.Task = &task
			}
		}
		if len(payload.Old) > 0 {
			var task model.Task
			if json.Unmarshal(payload.Old, &task) == nil {
				event.OldTask = &task
			}
		}
	case backend.TableProjects:
		if len(payload.New) > 0 {
			var project model.Project
			if json.Unmarshal(payload.New, &project) == nil {
				event.Project = &project
			}
		}
		if len(payload.Old) > 0 {
			var project model.Project
			if json.Unmarshal(payload.Old, &project) == nil {
				event.OldProject = &project
			}
		}
	case backend.TableSections:
		if len(payload.New) > 0 {
			var section model.Section
			if json.Unmarshal(payload.New, &section) == nil {
				event.Section = &section
			}
		}
		if len(payload.Old) > 0 {
			var section model.Section
			if json.Unmarshal(payload.Old, &section) == nil {
				event.OldSection = &section
			}
		}
	default:
		return backend.ChangeEvent{}, false
	}

	return event, true
}
