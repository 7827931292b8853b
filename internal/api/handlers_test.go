package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

var testNow = time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC)

type taskBody struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Task    *model.Task  `json:"task"`
	Spawned *model.Task  `json:"spawned"`
	Tasks   []model.Task `json:"tasks"`
	Count   int          `json:"count"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, _ := newTestServerWithRepo(t)
	return s
}

func newTestServerWithRepo(t *testing.T) (*Server, *repository.TaskRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewTaskRepository(db)
	stores := service.NewStores(repo, nil,
		service.WithLocation(time.UTC),
		service.WithClock(func() time.Time { return testNow }))
	s := NewServer(stores, time.UTC)
	s.now = func() time.Time { return testNow }
	return s, repo
}

func doRequest(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, taskBody) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var out taskBody
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func createTask(t *testing.T, s *Server, owner string, body map[string]any) model.Task {
	t.Helper()
	w, out := doRequest(t, s, http.MethodPost, "/api/users/"+owner+"/tasks", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, out.Task)
	return *out.Task
}

func TestCreateAndList(t *testing.T) {
	s := newTestServer(t)

	createTask(t, s, "1", map[string]any{"title": "Banana", "due_date": "2025-08-09T10:00:00Z", "tags": []string{"Shopping"}})
	createTask(t, s, "1", map[string]any{"title": "apple", "due_date": "2025-08-06T18:00:00Z", "tags": []string{"Shopping", "Urgent"}})
	createTask(t, s, "1", map[string]any{"title": "Report"})
	createTask(t, s, "2", map[string]any{"title": "Other owner"})

	w, out := doRequest(t, s, http.MethodGet, "/api/users/1/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "Report", out.Tasks[0].Title, "missing due date sorts first")

	_, out = doRequest(t, s, http.MethodGet, "/api/users/1/tasks?scope=today", nil)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "apple", out.Tasks[0].Title)

	_, out = doRequest(t, s, http.MethodGet, "/api/users/1/tasks?sort=title&tags=Shopping", nil)
	require.Len(t, out.Tasks, 2)
	assert.Equal(t, "apple", out.Tasks[0].Title)
	assert.Equal(t, "Banana", out.Tasks[1].Title)

	_, out = doRequest(t, s, http.MethodGet, "/api/users/1/tasks?tag=Shopping&tag=Urgent", nil)
	require.Len(t, out.Tasks, 1)

	_, out = doRequest(t, s, http.MethodGet, "/api/users/1/tasks?q=REP", nil)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "Report", out.Tasks[0].Title)

	_, out = doRequest(t, s, http.MethodGet, "/api/users/1/tasks?q=%20%20rep%20", nil)
	require.Len(t, out.Tasks, 1, "query text is trimmed before matching")
	assert.Equal(t, "Report", out.Tasks[0].Title)
}

func TestRefreshPicksUpOutsideWrites(t *testing.T) {
	s, repo := newTestServerWithRepo(t)
	createTask(t, s, "1", map[string]any{"title": "via api"})

	_, err := repo.CreateTask(context.Background(), 1, model.Draft{Title: "via cli"})
	require.NoError(t, err)

	_, out := doRequest(t, s, http.MethodGet, "/api/users/1/tasks", nil)
	assert.Equal(t, 1, out.Count, "cached list until refreshed")

	w, out := doRequest(t, s, http.MethodPost, "/api/users/1/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, out.Count)

	_, out = doRequest(t, s, http.MethodGet, "/api/users/1/tasks?sort=title", nil)
	assert.Equal(t, []string{"via api", "via cli"}, []string{out.Tasks[0].Title, out.Tasks[1].Title})

	w, _ = doRequest(t, s, http.MethodPost, "/api/users/0/refresh", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t)

	w, out := doRequest(t, s, http.MethodPost, "/api/users/1/tasks", map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, out.Success)

	w, _ = doRequest(t, s, http.MethodPost, "/api/users/1/tasks", map[string]any{"title": "x", "repetition": "hourly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(t, s, http.MethodPost, "/api/users/abc/tasks", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(t, s, http.MethodGet, "/api/users/1/tasks?scope=week", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestServer(t)
	task := createTask(t, s, "1", map[string]any{"title": "Draft", "due_date": "2025-08-09T10:00:00Z"})

	w, out := doRequest(t, s, http.MethodPatch, "/api/users/1/tasks/"+task.ID, map[string]any{
		"title":          "Final",
		"clear_due_date": true,
		"tags":           []string{"Work"},
		"repetition":     "weekly",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Final", out.Task.Title)
	assert.Nil(t, out.Task.DueDate)
	assert.Equal(t, []string{"Work"}, out.Task.Tags)
	assert.Equal(t, model.RepeatWeekly, out.Task.Repetition)

	w, _ = doRequest(t, s, http.MethodPatch, "/api/users/2/tasks/"+task.ID, map[string]any{"title": "stolen"})
	assert.Equal(t, http.StatusNotFound, w.Code, "tasks of another owner are invisible")

	w, _ = doRequest(t, s, http.MethodDelete, "/api/users/1/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, s, http.MethodGet, "/api/users/1/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleRepeatingTask(t *testing.T) {
	s := newTestServer(t)
	task := createTask(t, s, "1", map[string]any{
		"title":      "Standup",
		"due_date":   "2025-08-06T09:00:00Z",
		"reminder":   "2025-08-06T08:45:00Z",
		"repetition": "daily",
	})

	w, out := doRequest(t, s, http.MethodPost, "/api/users/1/tasks/"+task.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, out.Task)
	require.NotNil(t, out.Spawned)
	assert.True(t, out.Task.Completed)
	assert.False(t, out.Spawned.Completed)
	assert.True(t, out.Spawned.DueDate.Equal(time.Date(2025, 8, 7, 9, 0, 0, 0, time.UTC)))
	assert.True(t, out.Spawned.Reminder.Equal(time.Date(2025, 8, 7, 8, 45, 0, 0, time.UTC)))

	_, out = doRequest(t, s, http.MethodGet, "/api/users/1/tasks", nil)
	assert.Equal(t, 2, out.Count)

	// Reopening spawns nothing.
	_, out = doRequest(t, s, http.MethodPost, "/api/users/1/tasks/"+task.ID+"/toggle", nil)
	assert.False(t, out.Task.Completed)
	assert.Nil(t, out.Spawned)
}

func TestTagsAndStats(t *testing.T) {
	s := newTestServer(t)
	createTask(t, s, "1", map[string]any{"title": "a", "tags": []string{"Work", "Urgent"}})
	done := createTask(t, s, "1", map[string]any{"title": "b", "tags": []string{"Work"}, "due_date": "2025-08-06T15:00:00Z"})
	doRequest(t, s, http.MethodPost, "/api/users/1/tasks/"+done.ID+"/toggle", nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/1/tags", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var tags struct {
		Tags       []string `json:"tags"`
		Predefined []string `json:"predefined"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tags))
	assert.Equal(t, []string{"Urgent", "Work"}, tags.Tags)
	assert.Equal(t, model.PredefinedTags, tags.Predefined)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Stats service.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Stats.Total)
	assert.Equal(t, 1, stats.Stats.Completed)
	assert.Equal(t, 1, stats.Stats.Open)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
