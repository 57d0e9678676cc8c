package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/tests/testutil"
)

type fakeMailbox struct {
	messages []Message
	captured []uint32
	fetchErr error
	markErr  error
}

func (f *fakeMailbox) FetchFlagged(ctx context.Context, limit int) ([]Message, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []Message
	for _, msg := range f.messages {
		if !f.isCaptured(msg.UID) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMailbox) MarkCaptured(ctx context.Context, uid uint32) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.captured = append(f.captured, uid)
	return nil
}

func (f *fakeMailbox) isCaptured(uid uint32) bool {
	for _, c := range f.captured {
		if c == uid {
			return true
		}
	}
	return false
}

func TestRunOnceCreatesTasksFromFlaggedMail(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "capture@example.com")

	mailbox := &fakeMailbox{messages: []Message{
		{
			Envelope: Envelope{UID: 1, Subject: "Renew passport", From: "Gov Office", Date: time.Now()},
			TextBody: "Your passport expires soon.",
		},
		{
			Envelope: Envelope{UID: 2, Subject: "", From: "alice@example.com"},
		},
	}}

	capturer := NewCapturer(mailbox, b, session.User.ID)
	created, err := capturer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	tasks, err := b.FetchTasks(context.Background(), session.User.ID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %+v", tasks)
	}

	byTitle := map[string]model.Task{}
	for _, task := range tasks {
		byTitle[task.Title] = task
	}

	task, ok := byTitle["Renew passport"]
	if !ok {
		t.Fatal("subject not used as title")
	}
	if task.Status != model.StatusInbox {
		t.Errorf("status = %q, want inbox", task.Status)
	}
	if len(task.Tags) != 1 || task.Tags[0] != "email" {
		t.Errorf("tags = %v", task.Tags)
	}
	if !strings.Contains(task.Description, "Your passport expires soon.") {
		t.Errorf("body missing from description: %q", task.Description)
	}

	if _, ok := byTitle["Email from alice@example.com"]; !ok {
		t.Error("subjectless message did not get a fallback title")
	}

	if len(mailbox.captured) != 2 {
		t.Errorf("captured UIDs = %v", mailbox.captured)
	}
}

func TestTaskFromMessageTruncatesOnRuneBoundary(t *testing.T) {
	// The limit lands one byte into the first multi-byte rune.
	body := strings.Repeat("a", descriptionLimit-1) + strings.Repeat("日", 40)

	task := taskFromMessage(Message{
		Envelope: Envelope{UID: 7, Subject: "Long body", From: "bob@example.com"},
		TextBody: body,
	}, "user-1")

	if !utf8.ValidString(task.Description) {
		t.Fatalf("description is not valid UTF-8: %q", task.Description)
	}
	if !strings.HasSuffix(task.Description, "aaa…") {
		t.Errorf("truncation did not back up to the rune boundary: %q", task.Description[len(task.Description)-16:])
	}
}

func TestRunOnceIsIdempotentAcrossPolls(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "repoll@example.com")

	mailbox := &fakeMailbox{messages: []Message{
		{Envelope: Envelope{UID: 7, Subject: "Once only", From: "x@example.com"}},
	}}

	capturer := NewCapturer(mailbox, b, session.User.ID)
	if _, err := capturer.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	created, err := capturer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if created != 0 {
		t.Errorf("second poll created %d tasks, want 0", created)
	}

	tasks, _ := b.FetchTasks(context.Background(), session.User.ID)
	if len(tasks) != 1 {
		t.Errorf("tasks after two polls = %d, want 1", len(tasks))
	}
}

func TestRunOnceStopsOnMarkFailure(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "markfail@example.com")

	mailbox := &fakeMailbox{
		messages: []Message{{Envelope: Envelope{UID: 3, Subject: "Stuck", From: "y@example.com"}}},
		markErr:  errors.New("connection dropped"),
	}

	capturer := NewCapturer(mailbox, b, session.User.ID)
	if _, err := capturer.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when marking fails")
	}

	// The task exists; the unmarked message will be re-fetched and the
	// capture repeated, which is the intended failure mode.
	tasks, _ := b.FetchTasks(context.Background(), session.User.ID)
	if len(tasks) != 1 {
		t.Errorf("tasks = %d, want 1", len(tasks))
	}
}

func TestRunOnceFetchError(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "fetchfail@example.com")

	mailbox := &fakeMailbox{fetchErr: errors.New("unreachable")}
	capturer := NewCapturer(mailbox, b, session.User.ID)

	if _, err := capturer.RunOnce(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}
