package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coddyhq/coddy-server/internal/catalog"
	"github.com/coddyhq/coddy-server/internal/domain"
	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusNotFound, "Session not found")

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "Session not found" {
		t.Errorf("Expected error field, got %v", got)
	}
}

// fakeCatalog serves canned catalog data.
type fakeCatalog struct {
	roadmap *catalog.Roadmap
}

func (f *fakeCatalog) ListPaths(_ context.Context) []catalog.LearningPath {
	return []catalog.LearningPath{{ID: "lp-1", Name: "Web Development"}}
}

func (f *fakeCatalog) GetRoadmap(_ context.Context, pathID string) (*catalog.Roadmap, error) {
	if f.roadmap != nil && f.roadmap.PathID == pathID {
		return f.roadmap, nil
	}
	return nil, nil
}

func (f *fakeCatalog) TutorialsByCourse(_ context.Context, _ string) []catalog.Tutorial {
	return []catalog.Tutorial{{ID: "t-1", CourseID: "c-1", Name: "Intro"}}
}

// fakeHistoryRepo is an in-memory store.Repository for handler tests.
type fakeHistoryRepo struct {
	sessions map[string]*domain.ChatSession
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{sessions: make(map[string]*domain.ChatSession)}
}

func (f *fakeHistoryRepo) GetUser(_ context.Context, _ string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeHistoryRepo) CreateUser(_ context.Context, _ *domain.User) error { return nil }
func (f *fakeHistoryRepo) UpdateUser(_ context.Context, _ *domain.User) error { return nil }

func (f *fakeHistoryRepo) CreateSession(_ context.Context, userID, firstMessage string) (*domain.ChatSession, error) {
	session := &domain.ChatSession{
		ID:     "s-" + userID,
		UserID: userID,
		Title:  domain.SessionTitle(firstMessage),
	}
	f.sessions[session.ID] = session
	return session, nil
}

func (f *fakeHistoryRepo) ListSessions(_ context.Context, userID string) ([]*domain.ChatSession, error) {
	out := []*domain.ChatSession{}
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) GetSession(_ context.Context, sessionID string) (*domain.ChatSession, error) {
	return f.sessions[sessionID], nil
}

func (f *fakeHistoryRepo) AppendMessage(_ context.Context, _ string, _ domain.Role, _ string) error {
	return nil
}

func (f *fakeHistoryRepo) RenameSession(_ context.Context, sessionID, title string) error {
	s, ok := f.sessions[sessionID]
	if !ok {
		return errors.New("session not found: " + sessionID)
	}
	s.Title = title
	return nil
}

func (f *fakeHistoryRepo) DeleteSession(_ context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeHistoryRepo) Ping(_ context.Context) error { return nil }
func (f *fakeHistoryRepo) Close() error                 { return nil }

func newTestRouter(repo *fakeHistoryRepo, cat *fakeCatalog) http.Handler {
	r := chi.NewRouter()
	NewHandler(repo, cat).RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListPathsEndpoint(t *testing.T) {
	router := newTestRouter(newFakeHistoryRepo(), &fakeCatalog{})

	w := doRequest(t, router, http.MethodGet, "/api/paths", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var paths []catalog.LearningPath
	if err := json.NewDecoder(w.Body).Decode(&paths); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(paths) != 1 || paths[0].Name != "Web Development" {
		t.Errorf("Unexpected paths: %+v", paths)
	}
}

func TestGetRoadmapEndpoint(t *testing.T) {
	cat := &fakeCatalog{roadmap: &catalog.Roadmap{
		PathID:   "lp-1",
		PathName: "Web Development",
		Courses:  []catalog.Course{{ID: "c-1", Name: "HTML Basics"}},
		Stats:    catalog.RoadmapStats{TotalCourses: 1, TotalHours: 10},
	}}
	router := newTestRouter(newFakeHistoryRepo(), cat)

	w := doRequest(t, router, http.MethodGet, "/api/roadmap/lp-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Status string          `json:"status"`
		Data   catalog.Roadmap `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "success" || resp.Data.PathName != "Web Development" {
		t.Errorf("Unexpected roadmap response: %+v", resp)
	}
}

func TestGetRoadmapNotFound(t *testing.T) {
	router := newTestRouter(newFakeHistoryRepo(), &fakeCatalog{})

	w := doRequest(t, router, http.MethodGet, "/api/roadmap/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListTutorialsEndpoint(t *testing.T) {
	router := newTestRouter(newFakeHistoryRepo(), &fakeCatalog{})

	w := doRequest(t, router, http.MethodGet, "/api/tutorials/c-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var tutorials []catalog.Tutorial
	if err := json.NewDecoder(w.Body).Decode(&tutorials); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(tutorials) != 1 || tutorials[0].Name != "Intro" {
		t.Errorf("Unexpected tutorials: %+v", tutorials)
	}
}

func TestListSessionsRequiresUserID(t *testing.T) {
	router := newTestRouter(newFakeHistoryRepo(), &fakeCatalog{})

	w := doRequest(t, router, http.MethodGet, "/api/history", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	repo := newFakeHistoryRepo()
	router := newTestRouter(repo, &fakeCatalog{})

	// Create.
	w := doRequest(t, router, http.MethodPost, "/api/history", `{"userId": "u1", "firstMessage": "Rina"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on create, got %d", w.Code)
	}
	var created domain.ChatSession
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode created session: %v", err)
	}
	if created.Title != "Rina" {
		t.Errorf("Expected title derived from first message, got %q", created.Title)
	}

	// List.
	w = doRequest(t, router, http.MethodGet, "/api/history?userId=u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on list, got %d", w.Code)
	}

	// Get.
	w = doRequest(t, router, http.MethodGet, "/api/history/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on get, got %d", w.Code)
	}

	// Rename.
	w = doRequest(t, router, http.MethodPatch, "/api/history/"+created.ID, `{"title": "Go questions"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on rename, got %d", w.Code)
	}
	if repo.sessions[created.ID].Title != "Go questions" {
		t.Errorf("Expected renamed title, got %q", repo.sessions[created.ID].Title)
	}

	// Delete.
	w = doRequest(t, router, http.MethodDelete, "/api/history/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on delete, got %d", w.Code)
	}

	// Get after delete.
	w = doRequest(t, router, http.MethodGet, "/api/history/"+created.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestCreateSessionRequiresUserID(t *testing.T) {
	router := newTestRouter(newFakeHistoryRepo(), &fakeCatalog{})

	w := doRequest(t, router, http.MethodPost, "/api/history", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRenameMissingSessionNotFound(t *testing.T) {
	router := newTestRouter(newFakeHistoryRepo(), &fakeCatalog{})

	w := doRequest(t, router, http.MethodPatch, "/api/history/nope", `{"title": "x"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
