package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imageforge/internal/domain"
	"imageforge/internal/ledger"
	"imageforge/internal/poller"
	"imageforge/internal/providers/quickdraw"
	"imageforge/internal/service"
	"imageforge/internal/storage/drive"
)

type stubGen struct {
	taskID    string
	snapshots []quickdraw.TaskSnapshot
	calls     int
}

func (s *stubGen) Submit(ctx context.Context, model string, input map[string]any, callbackURL string) (string, error) {
	return s.taskID, nil
}

func (s *stubGen) FetchStatus(ctx context.Context, taskID string) (quickdraw.TaskSnapshot, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.snapshots) {
		idx = len(s.snapshots) - 1
	}
	return s.snapshots[idx], nil
}

type stubStorage struct{}

func (stubStorage) EnsureFolder(ctx context.Context, s *drive.Session, name string) (string, error) {
	return "folder-1", nil
}

func (stubStorage) Upload(ctx context.Context, s *drive.Session, folderID string, data []byte, displayName string, meta *drive.UploadMetadata) (domain.StoredAsset, error) {
	return domain.StoredAsset{AssetID: "a1", DisplayName: displayName}, nil
}

func (stubStorage) List(ctx context.Context, s *drive.Session, folderID string) ([]domain.StoredAsset, error) {
	return nil, nil
}

func (stubStorage) Delete(ctx context.Context, s *drive.Session, assetID string) error {
	return nil
}

func newTestApp(gen *stubGen) *App {
	p := poller.New(gen, poller.Options{MaxAttempts: 5, Interval: time.Millisecond})
	studio := service.New(service.Options{
		Generation: gen,
		Poller:     p,
		Storage:    stubStorage{},
		Ledger:     ledger.New(),
		Logger:     zerolog.Nop(),
	})
	connector := drive.NewConnector(drive.OAuthConfig{}, nil)
	return NewApp(studio, connector, zerolog.Nop())
}

func TestCreateTaskReturnsTerminalJob(t *testing.T) {
	gen := &stubGen{taskID: "task-1", snapshots: []quickdraw.TaskSnapshot{
		{State: quickdraw.TaskWaiting},
		{State: quickdraw.TaskSuccess, ResultURLs: []string{"https://e/out.png"}},
	}}
	app := newTestApp(gen)

	body := `{"model":"bytedance/flux-dev","input":{"prompt":"a red fox"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.CreateTask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Job domain.Job `json:"job"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job.Status != domain.JobStatusSuccess {
		t.Fatalf("expected success, got %s", resp.Job.Status)
	}
	if len(resp.Job.ResultURLs) != 1 {
		t.Fatalf("unexpected result urls: %v", resp.Job.ResultURLs)
	}
}

func TestCreateTaskRejectsInvalidInput(t *testing.T) {
	app := newTestApp(&stubGen{taskID: "task-1"})

	body := `{"model":"qwen/image-edit","input":{"prompt":"x"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.CreateTask(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateTaskArchiveWithoutSessionConflicts(t *testing.T) {
	app := newTestApp(&stubGen{taskID: "task-1"})

	body := `{"model":"bytedance/flux-dev","input":{"prompt":"x"},"archive":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.CreateTask(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	app := newTestApp(&stubGen{taskID: "task-1"})

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/missing", nil)
	rec := httptest.NewRecorder()
	app.GetTask(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListTasksFiltersByStatus(t *testing.T) {
	gen := &stubGen{taskID: "task-1", snapshots: []quickdraw.TaskSnapshot{
		{State: quickdraw.TaskFailed, FailMsg: "nsfw content"},
	}}
	app := newTestApp(gen)

	body := `{"model":"bytedance/flux-dev","input":{"prompt":"x"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	app.CreateTask(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks?status=failed", nil)
	rec := httptest.NewRecorder()
	app.ListTasks(rec, req)

	var resp struct {
		Tasks []domain.Job `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].FailureReason != "nsfw content" {
		t.Fatalf("unexpected tasks: %+v", resp.Tasks)
	}
}

func TestLibraryWithoutSessionConflicts(t *testing.T) {
	app := newTestApp(&stubGen{taskID: "task-1"})

	req := httptest.NewRequest(http.MethodGet, "/v1/library", nil)
	rec := httptest.NewRecorder()
	app.ListLibrary(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAuthStatusDisconnected(t *testing.T) {
	app := newTestApp(&stubGen{taskID: "task-1"})

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/status", nil)
	rec := httptest.NewRecorder()
	app.AuthStatus(rec, req)

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["connected"] {
		t.Fatal("expected connected=false")
	}
}
