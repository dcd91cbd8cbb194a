package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"taskboard.com/taskboard/internal/events"
	"taskboard.com/taskboard/internal/gateway"
	"taskboard.com/taskboard/internal/push"
	repository "taskboard.com/taskboard/internal/repositories"
	"taskboard.com/taskboard/internal/services"
	"taskboard.com/taskboard/internal/testutil"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

type testServer struct {
	*httptest.Server
	hub *SocketHub
}

func newTestServer(t *testing.T, rateLimit int, publishers ...events.Publisher) *testServer {
	t.Helper()
	db := testutil.NewTestDB(t)
	users := repository.NewUserRepository(db)
	if _, err := users.Seed(context.Background(), repository.DefaultUsers()); err != nil {
		t.Fatal(err)
	}

	hub := NewSocketHub()
	pool := services.NewPoolService(1, 32, append([]events.Publisher{hub}, publishers...)...)
	backend := services.NewBackend(repository.NewTaskRepository(db), users, pool)

	e := echo.New()
	Register(e, NewHandler(backend), hub, rateLimit)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		pool.Shutdown(context.Background())
	})
	return &testServer{Server: srv, hub: hub}
}

func doJSON(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestHandler_CreateAndList(t *testing.T) {
	srv := newTestServer(t, 100)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/tasks",
		`{"title":"  Draft spec ","description":null,"status":"TO_DO","assigneeId":1,"parentId":null}`)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var created model.Task
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatal(err)
	}
	if created.Title != "Draft spec" || created.User == nil {
		t.Errorf("unexpected created task %+v", created)
	}

	status, body = doJSON(t, http.MethodPost, srv.URL+"/api/tasks",
		`{"title":"Sub","parentId":`+jsonInt(created.ID)+`,"status":"COMPLETED"}`)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 for subtask, got %d: %s", status, body)
	}

	status, body = doJSON(t, http.MethodGet, srv.URL+"/api/tasks?include=subtasks&page=1&limit=50", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var page model.TaskPage
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 1 || len(page.Data[0].Children) != 1 || page.Data[0].PercentDone() != 100 {
		t.Errorf("unexpected page %s", body)
	}
	if page.Meta == nil || page.Meta.Limit != 50 {
		t.Errorf("expected meta with limit 50, got %+v", page.Meta)
	}
}

func TestHandler_ErrorResponses(t *testing.T) {
	srv := newTestServer(t, 100)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"invalid json", http.MethodPost, "/api/tasks", `{"title":`, http.StatusBadRequest, "invalid JSON payload"},
		{"short title", http.MethodPost, "/api/tasks", `{"title":"ab"}`, http.StatusBadRequest, "at least 3 characters"},
		{"unknown parent", http.MethodPost, "/api/tasks", `{"title":"abc","parentId":42}`, http.StatusUnprocessableEntity, "parent task not found"},
		{"bad id", http.MethodPut, "/api/tasks/abc", `{"title":"abc"}`, http.StatusBadRequest, "task id is required"},
		{"missing task", http.MethodPut, "/api/tasks/42", `{"title":"abc"}`, http.StatusNotFound, "task not found"},
		{"delete missing", http.MethodDelete, "/api/tasks/42", "", http.StatusNotFound, "task not found"},
		{"bad limit", http.MethodGet, "/api/tasks?limit=0", "", http.StatusBadRequest, "limit must be positive"},
		{"bad status filter", http.MethodGet, "/api/tasks?status=DONE", "", http.StatusBadRequest, "status must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, tt.method, srv.URL+tt.path, tt.body)
			if status != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, status, body)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("expected body to contain %q, got %s", tt.wantBody, body)
			}
		})
	}
}

func TestHandler_ListUsers(t *testing.T) {
	srv := newTestServer(t, 100)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/api/users", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	var users []model.User
	if err := json.Unmarshal([]byte(body), &users); err != nil {
		t.Fatal(err)
	}
	if len(users) != len(repository.DefaultUsers()) {
		t.Errorf("expected seeded users, got %d", len(users))
	}
}

func TestHandler_RateLimit(t *testing.T) {
	srv := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		if status, _ := doJSON(t, http.MethodGet, srv.URL+"/api/users", ""); status != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, status)
		}
	}
	status, body := doJSON(t, http.MethodGet, srv.URL+"/api/users", "")
	if status != http.StatusTooManyRequests || !strings.Contains(body, "rate limit exceeded") {
		t.Errorf("expected 429, got %d: %s", status, body)
	}
}

func TestSocketHub_RejectsPolling(t *testing.T) {
	srv := newTestServer(t, 100)

	status, _ := doJSON(t, http.MethodGet, srv.URL+"/socket.io/?EIO=4&transport=polling", "")
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for polling transport, got %d", status)
	}
}

// The client gateway and push manager talk to the reference service the
// same way they talk to a production deployment.
func TestEndToEnd_ClientSeesServerEvents(t *testing.T) {
	srv := newTestServer(t, 1000)

	received := make(chan string, 8)
	manager := push.NewManager(srv.URL)
	defer manager.Close()
	for _, event := range constants.TaskEvents {
		event := event
		manager.Rebind(event, func([]byte) { received <- event })
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.EnsureConnected(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForClients(t, srv.hub, 1)

	client := gateway.New(srv.URL)
	task, err := client.CreateTask(ctx, model.TaskInput{Title: model.Set("From client"), Status: model.Set(constants.StatusToDo)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expectEvent(t, received, constants.EventTaskCreated)

	if _, err := client.UpdateTask(ctx, task.ID, model.TaskInput{Status: model.Set(constants.StatusCompleted)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	expectEvent(t, received, constants.EventTaskUpdated)

	if err := client.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	expectEvent(t, received, constants.EventTaskDeleted)

	page, err := client.ListTasks(ctx, "include=subtasks&limit=50&page=1")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 0 {
		t.Errorf("expected empty list after delete, got %+v", page.Data)
	}
}

func waitForClients(t *testing.T, hub *SocketHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		joined := 0
		for _, c := range hub.clients {
			if c.connected {
				joined++
			}
		}
		hub.mu.RUnlock()
		if joined >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d connected sockets", n)
}

func expectEvent(t *testing.T, received <-chan string, want string) {
	t.Helper()
	select {
	case got := <-received:
		if got != want {
			t.Errorf("got event %s, want %s", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestSocketHub_PublishAfterClose(t *testing.T) {
	hub := NewSocketHub()
	if err := hub.Publish(context.Background(), events.Event{Name: constants.EventTaskCreated}); err != nil {
		t.Fatalf("publish with no clients: %v", err)
	}
	hub.Close()
	err := hub.Publish(context.Background(), events.Event{Name: constants.EventTaskCreated})
	if !errors.Is(err, events.ErrPublisherClosed) {
		t.Errorf("expected ErrPublisherClosed, got %v", err)
	}
}
