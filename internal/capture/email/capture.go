package email

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// fetchLimit caps how many messages a single poll turns into tasks.
const fetchLimit = 25

// descriptionLimit truncates long email bodies before they land in a
// task description.
const descriptionLimit = 2000

// Fetcher is the mailbox surface the capturer needs; *Client satisfies
// it, tests substitute their own.
type Fetcher interface {
	FetchFlagged(ctx context.Context, limit int) ([]Message, error)
	MarkCaptured(ctx context.Context, uid uint32) error
}

// Capturer polls a mailbox and files flagged messages as inbox tasks.
type Capturer struct {
	mailbox Fetcher
	tasks   backend.TaskService
	userID  string
}

// NewCapturer wires a mailbox to a task backend for the given user.
func NewCapturer(mailbox Fetcher, tasks backend.TaskService, userID string) *Capturer {
	return &Capturer{
		mailbox: mailbox,
		tasks:   tasks,
		userID:  userID,
	}
}

// RunOnce performs a single capture pass and reports how many tasks it
// created. A message is marked captured only after its task is stored,
// so a crash between the two repeats the capture rather than losing it.
func (c *Capturer) RunOnce(ctx context.Context) (int, error) {
	messages, err := c.mailbox.FetchFlagged(ctx, fetchLimit)
	if err != nil {
		return 0, fmt.Errorf("fetching flagged messages: %w", err)
	}

	created := 0
	for _, msg := range messages {
		task := taskFromMessage(msg, c.userID)
		if _, err := c.tasks.CreateTask(ctx, task); err != nil {
			return created, fmt.Errorf("capturing %q: %w", msg.Subject, err)
		}
		if err := c.mailbox.MarkCaptured(ctx, msg.UID); err != nil {
			return created, err
		}
		created++
	}

	return created, nil
}

// Loop runs capture passes at the given interval until ctx is
// cancelled. Errors are reported through onError and do not stop the
// loop; a flaky mail server should not take the capture path down.
func (c *Capturer) Loop(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.RunOnce(ctx); err != nil && onError != nil {
			onError(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// taskFromMessage builds the inbox task for a captured message.
func taskFromMessage(msg Message, userID string) model.Task {
	title := strings.TrimSpace(msg.Subject)
	if title == "" {
		title = "Email from " + msg.From
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "From: %s\n", msg.From)
	if !msg.Date.IsZero() {
		fmt.Fprintf(&desc, "Date: %s\n", msg.Date.Format(time.RFC1123))
	}
	if body := strings.TrimSpace(msg.TextBody); body != "" {
		desc.WriteString("\n")
		if len(body) > descriptionLimit {
			cut := descriptionLimit
			// Back up so the cut never lands inside a multi-byte rune.
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			body = body[:cut] + "…"
		}
		desc.WriteString(body)
	}

	return model.Task{
		UserID:      userID,
		Title:       title,
		Description: desc.String(),
		Status:      model.StatusInbox,
		Tags:        []string{"email"},
	}
}
