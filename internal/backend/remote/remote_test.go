package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

func TestSignInInstallsToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v1/token":
			if r.URL.Query().Get("grant_type") != "password" {
				t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
			}
			var creds map[string]string
			json.NewDecoder(r.Body).Decode(&creds)
			if creds["email"] != "alice@example.com" {
				t.Errorf("email = %q", creds["email"])
			}
			json.NewEncoder(w).Encode(sessionResponse{
				AccessToken:  "token-123",
				RefreshToken: "refresh-456",
				User:         model.User{ID: "u1", Email: "alice@example.com"},
			})
		case r.URL.Path == "/api/v1/tasks":
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode([]model.Task{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	b := New(server.URL, "app-key")
	session, err := b.SignIn(context.Background(), backend.Credentials{
		Email: "alice@example.com", Password: "secret",
	})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if session.AccessToken != "token-123" || session.User.ID != "u1" {
		t.Errorf("unexpected session: %+v", session)
	}

	if _, err := b.FetchTasks(context.Background(), "u1"); err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if gotAuth != "Bearer token-123" {
		t.Errorf("Authorization = %q, want Bearer token-123", gotAuth)
	}
}

func TestSignUpConfirmationRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sessionResponse{ConfirmationRequired: true})
	}))
	defer server.Close()

	b := New(server.URL, "")
	_, err := b.SignUp(context.Background(), backend.Credentials{
		Email: "new@example.com", Password: "secret",
	})
	if !errors.Is(err, backend.ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
}

func TestUnauthorizedBecomesAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
	}))
	defer server.Close()

	b := New(server.URL, "")
	_, err := b.FetchTasks(context.Background(), "u1")
	if !backend.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !strings.Contains(err.Error(), "token expired") {
		t.Errorf("error lost server message: %v", err)
	}
}

func TestNotFoundBecomesErrNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	b := New(server.URL, "")
	_, err := b.UpdateTask(context.Background(), "missing", model.TaskPatch{Title: model.String("x")})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]model.Task{{ID: "t1", Title: "after retry"}})
	}))
	defer server.Close()

	b := New(server.URL, "")
	tasks, err := b.FetchTasks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestUpdateTaskSendsSparsePatch(t *testing.T) {
	var body map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(model.Task{ID: "t1", Title: "renamed"})
	}))
	defer server.Close()

	b := New(server.URL, "")
	_, err := b.UpdateTask(context.Background(), "t1", model.TaskPatch{
		Title:        model.String("renamed"),
		ClearDueDate: true,
	})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	if string(body["title"]) != `"renamed"` {
		t.Errorf("title = %s", body["title"])
	}
	if raw, ok := body["due_date"]; !ok || string(raw) != "null" {
		t.Errorf("due_date = %s, want explicit null", raw)
	}
	if _, ok := body["status"]; ok {
		t.Error("untouched field status present in patch body")
	}
}

func TestSubscribeDecodesEvents(t *testing.T) {
	task := model.Task{ID: "t1", UserID: "u1", Title: "streamed", UpdatedAt: time.Now().UTC()}
	taskJSON, _ := json.Marshal(task)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprintf(w, ": keepalive\n\n")
		fmt.Fprintf(w, "data: {\"table\":\"tasks\",\"type\":\"INSERT\",\"new\":%s}\n\n", taskJSON)
		fmt.Fprintf(w, "data: {\"table\":\"tasks\",\"type\":\"DELETE\",\"old\":%s}\n\n", taskJSON)
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	b := New(server.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := b.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	event := waitForEvent(t, feed)
	if event.Type != backend.EventInsert || event.Task == nil || event.Task.ID != "t1" {
		t.Fatalf("unexpected first event: %+v", event)
	}

	event = waitForEvent(t, feed)
	if event.Type != backend.EventDelete || event.OldTask == nil || event.OldTask.ID != "t1" {
		t.Fatalf("unexpected second event: %+v", event)
	}

	cancel()
	select {
	case _, ok := <-feed:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Error("feed channel not closed after cancel")
	}
}

func TestSubscribeRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	b := New(server.URL, "")
	_, err := b.Subscribe(context.Background(), "u1")
	if !backend.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestDecodeChangeSkipsUnknownTable(t *testing.T) {
	_, ok := decodeChange([]byte(`{"table":"audit_log","type":"INSERT","new":{}}`))
	if ok {
		t.Error("unknown table not skipped")
	}
	_, ok = decodeChange([]byte(`{"table":"tasks","type":"TRUNCATE"}`))
	if ok {
		t.Error("unknown event type not skipped")
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}

	got, err := TokenExpiry(signed)
	if err != nil {
		t.Fatalf("TokenExpiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}
}

func TestTokenExpiryMalformed(t *testing.T) {
	if _, err := TokenExpiry("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func waitForEvent(t *testing.T, feed <-chan backend.ChangeEvent) backend.ChangeEvent {
	t.Helper()
	select {
	case event, ok := <-feed:
		if !ok {
			t.Fatal("feed channel closed unexpectedly")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return backend.ChangeEvent{}
	}
}
