package httpserver_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"taskmanager/internal/cache"
	"taskmanager/internal/handler"
	"taskmanager/internal/httpserver"
	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/internal/service"
	"taskmanager/internal/storage"
	"taskmanager/internal/testutil"
	"taskmanager/pkg/trace"
	"taskmanager/pkg/util"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
	util.PasswordCost = bcrypt.MinCost
}

type testServer struct {
	t      *testing.T
	store  *repository.Store
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := testutil.NewTestStore(t)
	logger := zaptest.NewLogger(t)
	blobs := storage.New(afero.NewMemMapFs(), 1<<20, logger)
	paginator := handler.Paginator{DefaultSize: 20, MaxSize: 100}

	authSvc := service.NewAuthService(store, cache.NewUserCache(nil, time.Minute, logger), testSecret, time.Hour, logger)
	handlers := httpserver.Handlers{
		Auth:       handler.NewAuthHandler(authSvc, logger),
		Task:       handler.NewTaskHandler(service.NewTaskService(store, blobs, logger), paginator, logger),
		Category:   handler.NewCategoryHandler(service.NewCategoryService(store, logger), paginator, logger),
		Tag:        handler.NewTagHandler(service.NewTagService(store, logger), paginator, logger),
		Comment:    handler.NewCommentHandler(service.NewCommentService(store, logger), paginator, logger),
		Attachment: handler.NewAttachmentHandler(service.NewAttachmentService(store, blobs, logger), paginator, logger),
	}
	router := httpserver.NewRouter(handlers, authSvc, store, httpserver.Options{AllowedOrigins: []string{"*"}}, logger)
	return &testServer{t: t, store: store, router: router}
}

// user creates a user and returns it with a valid bearer token.
func (s *testServer) user(name string) (*model.User, string) {
	s.t.Helper()
	u := testutil.CreateUser(s.t, s.store, name)
	token, err := util.GenerateJWT(u.ID, testSecret, time.Hour)
	require.NoError(s.t, err)
	return u, token
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func resultIDs(t *testing.T, w *httptest.ResponseRecorder) []float64 {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results, ok := decode(t, w)["results"].([]any)
	require.True(t, ok)
	ids := make([]float64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.(map[string]any)["id"].(float64))
	}
	return ids
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))

	w = s.do(http.MethodHead, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode(t, w)["status"])

	w = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTraceIDIsEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "abc123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName))
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/tasks", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a token for a user that no longer exists
	token, err := util.GenerateJWT(4242, testSecret, time.Hour)
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/api/tasks", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterLoginMe(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "dana", "email": "bad", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	details := decode(t, w)["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")

	w = s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "dana", "email": "dana@example.com", "password": "long enough", "password2": "long enough",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"username": "dana", "password": "nope nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"username": "dana", "password": "long enough"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["access"].(string)

	w = s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dana", decode(t, w)["username"])
}

func TestTaskVisibility(t *testing.T) {
	s := newTestServer(t)
	alice, aliceToken := s.user("alice")
	bob, bobToken := s.user("bob")
	_, carolToken := s.user("carol")

	own := testutil.CreateTask(s.t, s.store, alice.ID, "own")
	shared := testutil.CreateTask(s.t, s.store, alice.ID, "shared", func(task *model.Task) {
		task.AssignedToID = &bob.ID
	})

	assert.ElementsMatch(t, []float64{float64(own.ID), float64(shared.ID)}, resultIDs(t, s.do(http.MethodGet, "/api/tasks", aliceToken, nil)))
	assert.ElementsMatch(t, []float64{float64(shared.ID)}, resultIDs(t, s.do(http.MethodGet, "/api/tasks", bobToken, nil)))
	assert.Empty(t, resultIDs(t, s.do(http.MethodGet, "/api/tasks", carolToken, nil)))

	assert.ElementsMatch(t, []float64{float64(own.ID), float64(shared.ID)}, resultIDs(t, s.do(http.MethodGet, "/api/tasks/my_tasks", aliceToken, nil)))
	assert.Empty(t, resultIDs(t, s.do(http.MethodGet, "/api/tasks/my_tasks", bobToken, nil)))
	assert.ElementsMatch(t, []float64{float64(shared.ID)}, resultIDs(t, s.do(http.MethodGet, "/api/tasks/assigned_to_me", bobToken, nil)))

	path := fmt.Sprintf("/api/tasks/%d", shared.ID)
	w := s.do(http.MethodGet, path, carolToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/tasks/abc", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/tasks", aliceToken, nil)
	summary := decode(t, w)["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "alice", summary["owner"])
	assert.NotContains(t, summary, "description")
}

func TestAssigneeCannotWrite(t *testing.T) {
	s := newTestServer(t)
	alice, _ := s.user("alice")
	bob, bobToken := s.user("bob")
	task := testutil.CreateTask(s.t, s.store, alice.ID, "shared", func(task *model.Task) {
		task.AssignedToID = &bob.ID
	})
	path := fmt.Sprintf("/api/tasks/%d", task.ID)

	w := s.do(http.MethodGet, path, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", decode(t, w)["assigned_to"].(map[string]any)["username"])

	w = s.do(http.MethodPatch, path, bobToken, map[string]any{"title": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, path, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, path, bobToken, nil)
	assert.Equal(t, "shared", decode(t, w)["title"])
}

func TestTaskCategoryIDs(t *testing.T) {
	s := newTestServer(t)
	_, token := s.user("alice")

	var catIDs []float64
	for _, name := range []string{"work", "home"} {
		w := s.do(http.MethodPost, "/api/categories", token, map[string]any{"name": name})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		catIDs = append(catIDs, decode(t, w)["id"].(float64))
	}

	w := s.do(http.MethodPost, "/api/tasks", token, map[string]any{
		"title":        "t",
		"category_ids": catIDs,
		"owner":        999,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Len(t, created["categories"], 2)
	path := fmt.Sprintf("/api/tasks/%v", created["id"])

	w = s.do(http.MethodPatch, path, token, map[string]any{"description": "x"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["categories"], 2)

	w = s.do(http.MethodPatch, path, token, map[string]any{"category_ids": []int{}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["categories"], 0)

	w = s.do(http.MethodPatch, path, token, map[string]any{"category_ids": []int{12345}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["details"], "category_ids")
}

func TestCompletedAtLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, token := s.user("alice")

	w := s.do(http.MethodPost, "/api/tasks", token, map[string]any{"title": "t"})
	require.Equal(t, http.StatusCreated, w.Code)
	task := decode(t, w)
	assert.Nil(t, task["completed_at"])
	path := fmt.Sprintf("/api/tasks/%v", task["id"])

	w = s.do(http.MethodPatch, path, token, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code)
	completedAt := decode(t, w)["completed_at"]
	assert.NotNil(t, completedAt)

	w = s.do(http.MethodPost, path+"/complete", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, completedAt, decode(t, w)["completed_at"])

	w = s.do(http.MethodPatch, path, token, map[string]any{"status": "todo"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["completed_at"])

	w = s.do(http.MethodPatch, path, token, map[string]any{"status": "finished"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, path, token, map[string]any{"status": "todo"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["details"], "title")
}

func TestAssignAction(t *testing.T) {
	s := newTestServer(t)
	alice, token := s.user("alice")
	bob, _ := s.user("bob")
	task := testutil.CreateTask(s.t, s.store, alice.ID, "t")
	path := fmt.Sprintf("/api/tasks/%d/assign", task.ID)

	w := s.do(http.MethodPost, path, token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user_id is required", decode(t, w)["error"])

	w = s.do(http.MethodPost, path, token, map[string]any{"user_id": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user_id is required", decode(t, w)["error"])

	w = s.do(http.MethodPost, path, token, map[string]any{"user_id": 9999})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decode(t, w)["error"])

	w = s.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	assert.Nil(t, decode(t, w)["assigned_to"])

	w = s.do(http.MethodPost, path, token, map[string]any{"user_id": bob.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "bob", decode(t, w)["assigned_to"].(map[string]any)["username"])

	w = s.do(http.MethodPost, path, token, map[string]any{"user_id": fmt.Sprint(alice.ID)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode(t, w)["assigned_to"].(map[string]any)["username"])
}

func TestStatusFilterAndValidation(t *testing.T) {
	s := newTestServer(t)
	alice, token := s.user("alice")
	todo := testutil.CreateTask(s.t, s.store, alice.ID, "todo")
	testutil.CreateTask(s.t, s.store, alice.ID, "done", func(task *model.Task) {
		task.Status = model.StatusCompleted
	})

	assert.Equal(t, []float64{float64(todo.ID)}, resultIDs(t, s.do(http.MethodGet, "/api/tasks?status=todo", token, nil)))

	w := s.do(http.MethodGet, "/api/tasks?status=bogus", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["details"], "status")

	w = s.do(http.MethodGet, "/api/tasks?assigned_to=9999", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["details"], "assigned_to")
}

func TestPagination(t *testing.T) {
	s := newTestServer(t)
	alice, token := s.user("alice")
	for i := 0; i < 3; i++ {
		testutil.CreateTask(s.t, s.store, alice.ID, fmt.Sprintf("t%d", i))
	}

	w := s.do(http.MethodGet, "/api/tasks?page_size=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(3), body["count"])
	assert.Len(t, body["results"], 2)
	assert.Contains(t, body["next"], "page=2")
	assert.Nil(t, body["previous"])

	w = s.do(http.MethodGet, "/api/tasks?page_size=2&page=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Len(t, body["results"], 1)
	assert.Nil(t, body["next"])
	assert.NotNil(t, body["previous"])

	w = s.do(http.MethodGet, "/api/tasks?page_size=2&page=3", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// an offset that would overflow is out of range, not page 1
	w = s.do(http.MethodGet, "/api/tasks?page=9223372036854775807", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTaskCascades(t *testing.T) {
	s := newTestServer(t)
	alice, token := s.user("alice")
	task := testutil.CreateTask(s.t, s.store, alice.ID, "t")

	w := s.do(http.MethodPost, "/api/comments", token, map[string]any{"task": task.ID, "content": "first"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/tags", token, map[string]any{"name": "urgent"})
	require.Equal(t, http.StatusCreated, w.Code)
	tagID := decode(t, w)["id"]

	path := fmt.Sprintf("/api/tasks/%d", task.ID)
	w = s.do(http.MethodPatch, path, token, map[string]any{"tag_ids": []any{tagID}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tags"], 1)

	w = s.do(http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Empty(t, resultIDs(t, s.do(http.MethodGet, "/api/comments", token, nil)))
	w = s.do(http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the tag itself survives
	w = s.do(http.MethodGet, fmt.Sprintf("/api/tags/%v", tagID), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAttachmentUploadAndDownload(t *testing.T) {
	s := newTestServer(t)
	alice, token := s.user("alice")
	_, otherToken := s.user("mallory")
	task := testutil.CreateTask(s.t, s.store, alice.ID, "t")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("task", fmt.Sprint(task.ID)))
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("remember the milk"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode(t, w)
	assert.Equal(t, "notes.txt", created["filename"])
	assert.Equal(t, float64(len("remember the milk")), created["file_size"])
	assert.Contains(t, created["file"], "/download")

	download := fmt.Sprintf("/api/attachments/%v/download", created["id"])
	w = s.do(http.MethodGet, download, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remember the milk", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "notes.txt")

	w = s.do(http.MethodGet, download, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/attachments", token, map[string]any{"task": task.ID})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["details"], "file")
}
