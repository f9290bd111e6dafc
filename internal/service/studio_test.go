package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imageforge/internal/archive"
	"imageforge/internal/domain"
	"imageforge/internal/ledger"
	"imageforge/internal/poller"
	"imageforge/internal/providers/quickdraw"
	"imageforge/internal/storage/drive"
)

// fakeGen scripts the generation provider: one submit result, then a
// sequence of status snapshots.
type fakeGen struct {
	taskID      string
	submitErr   error
	snapshots   []quickdraw.TaskSnapshot
	statusCalls int
}

func (f *fakeGen) Submit(ctx context.Context, model string, input map[string]any, callbackURL string) (string, error) {
	return f.taskID, f.submitErr
}

func (f *fakeGen) FetchStatus(ctx context.Context, taskID string) (quickdraw.TaskSnapshot, error) {
	idx := f.statusCalls
	f.statusCalls++
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	return f.snapshots[idx], nil
}

type fakeStorage struct {
	folderID  string
	uploads   []string
	uploadErr error
	assets    []domain.StoredAsset
	deleted   []string
}

func (f *fakeStorage) EnsureFolder(ctx context.Context, s *drive.Session, name string) (string, error) {
	return f.folderID, nil
}

func (f *fakeStorage) Upload(ctx context.Context, s *drive.Session, folderID string, data []byte, displayName string, meta *drive.UploadMetadata) (domain.StoredAsset, error) {
	f.uploads = append(f.uploads, displayName)
	if f.uploadErr != nil {
		return domain.StoredAsset{}, f.uploadErr
	}
	src := ""
	if meta != nil {
		src = meta.SourceURL
	}
	return domain.StoredAsset{AssetID: "asset-" + displayName, DisplayName: displayName, ContainerID: folderID, SourceURL: src}, nil
}

func (f *fakeStorage) List(ctx context.Context, s *drive.Session, folderID string) ([]domain.StoredAsset, error) {
	return f.assets, nil
}

func (f *fakeStorage) Delete(ctx context.Context, s *drive.Session, assetID string) error {
	f.deleted = append(f.deleted, assetID)
	return nil
}

func newStudio(gen *fakeGen, storage *fakeStorage, hc *http.Client) *Studio {
	p := poller.New(gen, poller.Options{MaxAttempts: 10, Interval: time.Millisecond})
	a := archive.New(storage, archive.Options{HTTPClient: hc})
	return New(Options{
		Generation: gen,
		Poller:     p,
		Archiver:   a,
		Storage:    storage,
		Ledger:     ledger.New(),
		Logger:     zerolog.Nop(),
		FolderName: "Test Folder",
	})
}

func waiting() quickdraw.TaskSnapshot { return quickdraw.TaskSnapshot{State: quickdraw.TaskWaiting} }

func TestGenerateSuccessAfterWaiting(t *testing.T) {
	gen := &fakeGen{taskID: "abc123", snapshots: []quickdraw.TaskSnapshot{
		waiting(), waiting(), waiting(),
		{State: quickdraw.TaskSuccess, ResultURLs: []string{"https://e/out.png"}},
	}}
	s := newStudio(gen, &fakeStorage{}, nil)

	job, err := s.Generate(context.Background(), domain.ModelQwenEdit,
		map[string]any{"prompt": "x", "image_url": "https://e/i.png"}, nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if job.Status != domain.JobStatusSuccess {
		t.Fatalf("expected success, got %s", job.Status)
	}
	if len(job.ResultURLs) != 1 || job.ResultURLs[0] != "https://e/out.png" {
		t.Fatalf("unexpected result urls: %v", job.ResultURLs)
	}
	if gen.statusCalls != 4 {
		t.Fatalf("expected 4 status calls, got %d", gen.statusCalls)
	}
	if job.CompletedAt.IsZero() {
		t.Fatal("terminal job must carry CompletedAt")
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	gen := &fakeGen{taskID: "abc123", snapshots: []quickdraw.TaskSnapshot{
		waiting(), waiting(),
		{State: quickdraw.TaskFailed, FailMsg: "nsfw content"},
	}}
	s := newStudio(gen, &fakeStorage{}, nil)

	job, err := s.Generate(context.Background(), domain.ModelTextToImage,
		map[string]any{"prompt": "x"}, nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.FailureReason != "nsfw content" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(job.ResultURLs) != 0 {
		t.Fatal("failed job must not carry result urls")
	}
}

func TestGenerateEmptyResultsResolvesFailed(t *testing.T) {
	gen := &fakeGen{taskID: "abc123", snapshots: []quickdraw.TaskSnapshot{
		{State: quickdraw.TaskSuccess},
	}}
	s := newStudio(gen, &fakeStorage{}, nil)

	job, err := s.Generate(context.Background(), domain.ModelTextToImage,
		map[string]any{"prompt": "x"}, nil, GenerateOptions{})
	var malformed *domain.MalformedResultError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResultError, got %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("empty success must resolve as failed, got %s", job.Status)
	}
	if len(job.ResultURLs) != 0 {
		t.Fatalf("failed job must not carry result urls: %v", job.ResultURLs)
	}
	if job.FailureReason == "" {
		t.Fatal("failed job must carry a reason")
	}
}

func TestGenerateTimeout(t *testing.T) {
	gen := &fakeGen{taskID: "abc123", snapshots: []quickdraw.TaskSnapshot{waiting()}}
	p := poller.New(gen, poller.Options{MaxAttempts: 3, Interval: time.Millisecond})
	s := New(Options{
		Generation: gen,
		Poller:     p,
		Storage:    &fakeStorage{},
		Ledger:     ledger.New(),
		Logger:     zerolog.Nop(),
	})

	job, err := s.Generate(context.Background(), domain.ModelTextToImage,
		map[string]any{"prompt": "x"}, nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if job.Status != domain.JobStatusTimeout {
		t.Fatalf("expected timeout, got %s", job.Status)
	}
	if gen.statusCalls != 3 {
		t.Fatalf("expected exactly 3 status calls, got %d", gen.statusCalls)
	}
	if job.FailureReason == "" {
		t.Fatal("timeout must carry a reason")
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	s := newStudio(&fakeGen{taskID: "t"}, &fakeStorage{}, nil)

	_, err := s.Generate(context.Background(), domain.ModelQwenEdit,
		map[string]any{"prompt": "x"}, nil, GenerateOptions{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for edit model without image, got %v", err)
	}

	_, err = s.Generate(context.Background(), domain.ModelTextToImage,
		map[string]any{"prompt": "   "}, nil, GenerateOptions{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank prompt, got %v", err)
	}
}

func TestGenerateArchiveRequiresSession(t *testing.T) {
	s := newStudio(&fakeGen{taskID: "t"}, &fakeStorage{}, nil)
	_, err := s.Generate(context.Background(), domain.ModelTextToImage,
		map[string]any{"prompt": "x"}, nil, GenerateOptions{Archive: true})
	if !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestGenerateArchivesOnSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer ts.Close()

	gen := &fakeGen{taskID: "abc123", snapshots: []quickdraw.TaskSnapshot{
		{State: quickdraw.TaskSuccess, ResultURLs: []string{ts.URL + "/out.png"}},
	}}
	storage := &fakeStorage{folderID: "folder-1"}
	s := newStudio(gen, storage, ts.Client())

	job, err := s.Generate(context.Background(), "qwen/image-edit",
		map[string]any{"prompt": "x", "image_url": "https://e/i.png"},
		drive.NewSession(nil), GenerateOptions{Archive: true})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(storage.uploads) != 1 || storage.uploads[0] != "qwen-image-edit_abc123_0.png" {
		t.Fatalf("unexpected uploads: %v", storage.uploads)
	}
	if len(job.Archived) != 1 || job.Archived[0].ContainerID != "folder-1" {
		t.Fatalf("archived assets not recorded: %+v", job.Archived)
	}
}

func TestGeneratePartialArchiveSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer ts.Close()

	gen := &fakeGen{taskID: "abc123", snapshots: []quickdraw.TaskSnapshot{
		{State: quickdraw.TaskSuccess, ResultURLs: []string{ts.URL + "/a.png", ts.URL + "/b.png"}},
	}}
	storage := &fakeStorage{folderID: "folder-1", uploadErr: errors.New("quota exceeded")}
	s := newStudio(gen, storage, ts.Client())

	job, err := s.Generate(context.Background(), domain.ModelTextToImage,
		map[string]any{"prompt": "x"}, drive.NewSession(nil), GenerateOptions{Archive: true})
	var partial *domain.PartialArchiveError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialArchiveError, got %v", err)
	}
	if job.Status != domain.JobStatusSuccess {
		t.Fatalf("archival failure must not overwrite the job outcome: %s", job.Status)
	}
}

func TestUploadToLibraryGeneratesName(t *testing.T) {
	storage := &fakeStorage{folderID: "folder-1"}
	s := newStudio(&fakeGen{taskID: "t"}, storage, nil)

	asset, err := s.UploadToLibrary(context.Background(), drive.NewSession(nil), "", []byte("data"))
	if err != nil {
		t.Fatalf("UploadToLibrary error: %v", err)
	}
	if asset.DisplayName == "" {
		t.Fatal("expected generated display name")
	}
	if _, err := s.UploadToLibrary(context.Background(), nil, "x.png", []byte("data")); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestLibrarySortByName(t *testing.T) {
	storage := &fakeStorage{folderID: "f", assets: []domain.StoredAsset{
		{AssetID: "1", DisplayName: "zebra.png"},
		{AssetID: "2", DisplayName: "apple.png"},
	}}
	s := newStudio(&fakeGen{taskID: "t"}, storage, nil)

	assets, err := s.Library(context.Background(), drive.NewSession(nil), true)
	if err != nil {
		t.Fatalf("Library error: %v", err)
	}
	if assets[0].DisplayName != "apple.png" {
		t.Fatalf("unexpected order: %v", assets)
	}
}
