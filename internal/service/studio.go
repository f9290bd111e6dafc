// Package service wires the generation client, poller, archiver, storage and
// ledger into the end-to-end flow a caller drives: submit, poll to a
// terminal state, archive on success, record everything.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imageforge/internal/archive"
	"imageforge/internal/domain"
	"imageforge/internal/ledger"
	"imageforge/internal/poller"
	"imageforge/internal/providers/quickdraw"
	"imageforge/internal/storage/drive"
)

// GenerationClient is the provider surface the studio submits to.
type GenerationClient interface {
	Submit(ctx context.Context, model string, input map[string]any, callbackURL string) (string, error)
	FetchStatus(ctx context.Context, taskID string) (quickdraw.TaskSnapshot, error)
}

// Storage is the remote-storage surface the studio manages the library with.
type Storage interface {
	EnsureFolder(ctx context.Context, s *drive.Session, name string) (string, error)
	Upload(ctx context.Context, s *drive.Session, folderID string, data []byte, displayName string, meta *drive.UploadMetadata) (domain.StoredAsset, error)
	List(ctx context.Context, s *drive.Session, folderID string) ([]domain.StoredAsset, error)
	Delete(ctx context.Context, s *drive.Session, assetID string) error
}

// Options wires a Studio.
type Options struct {
	Generation  GenerationClient
	Poller      *poller.Poller
	Archiver    *archive.Archiver
	Storage     Storage
	Ledger      *ledger.Ledger
	Logger      zerolog.Logger
	FolderName  string
	CallbackURL string
}

// Studio is the application service behind every caller-facing operation.
type Studio struct {
	gen         GenerationClient
	poller      *poller.Poller
	archiver    *archive.Archiver
	storage     Storage
	ledger      *ledger.Ledger
	logger      zerolog.Logger
	folderName  string
	callbackURL string
	now         func() time.Time
}

// DefaultFolderName is the app folder used when no variant-specific name is
// configured.
const DefaultFolderName = "AI Generated Images"

// New builds a Studio from opts.
func New(opts Options) *Studio {
	folder := opts.FolderName
	if folder == "" {
		folder = DefaultFolderName
	}
	return &Studio{
		gen:         opts.Generation,
		poller:      opts.Poller,
		archiver:    opts.Archiver,
		storage:     opts.Storage,
		ledger:      opts.Ledger,
		logger:      opts.Logger,
		folderName:  folder,
		callbackURL: opts.CallbackURL,
		now:         time.Now,
	}
}

// GenerateOptions tunes one generation run.
type GenerateOptions struct {
	// Archive uploads results to remote storage after success. Requires an
	// active session; without one the request fails observably rather than
	// queueing archival for later.
	Archive bool
	// Progress receives poll progress fractions.
	Progress poller.ProgressFunc
}

// Generate runs one job end to end and returns the final ledger entry. A
// non-nil error alongside a terminal job means a post-terminal step failed
// (e.g. partial archival); the ledger entry is authoritative either way.
func (s *Studio) Generate(ctx context.Context, model string, input map[string]any, sess *drive.Session, opts GenerateOptions) (domain.Job, error) {
	if err := domain.ValidateInput(model, input); err != nil {
		return domain.Job{}, err
	}
	if opts.Archive && sess == nil {
		return domain.Job{}, domain.ErrNoSession
	}

	taskID, err := s.gen.Submit(ctx, model, input, s.callbackURL)
	if err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{
		ID:          taskID,
		Model:       model,
		Input:       input,
		Status:      domain.JobStatusPending,
		SubmittedAt: s.now(),
	}
	s.ledger.Record(job)
	_ = s.ledger.Update(taskID, ledger.Mutation{Status: domain.JobStatusWaiting})
	s.logger.Info().Str("task_id", taskID).Str("model", model).Msg("job submitted")

	outcome, err := s.poller.Wait(ctx, taskID, opts.Progress)
	if err != nil {
		var malformed *domain.MalformedResultError
		if errors.As(err, &malformed) {
			// The provider reported success but the payload is undecodable;
			// resolve the entry as failed with the decode error as reason.
			_ = s.ledger.Update(taskID, ledger.Mutation{
				Status:        domain.JobStatusFailed,
				FailureReason: err.Error(),
				CompletedAt:   s.now(),
			})
		}
		final, _ := s.ledger.Get(taskID)
		return final, err
	}

	mutation := ledger.Mutation{
		Status:      outcome.Status,
		CostTimeMS:  outcome.CostTimeMS,
		CompletedAt: s.now(),
	}
	switch outcome.Status {
	case domain.JobStatusSuccess:
		mutation.ResultURLs = outcome.ResultURLs
	default:
		mutation.FailureReason = outcome.FailureReason
	}
	if err := s.ledger.Update(taskID, mutation); err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("ledger update failed")
	}

	var archiveErr error
	if outcome.Status == domain.JobStatusSuccess && opts.Archive {
		archiveErr = s.archiveJob(ctx, sess, taskID)
	}

	final, _ := s.ledger.Get(taskID)
	return final, archiveErr
}

func (s *Studio) archiveJob(ctx context.Context, sess *drive.Session, taskID string) error {
	job, ok := s.ledger.Get(taskID)
	if !ok {
		return fmt.Errorf("service: job %s: %w", taskID, domain.ErrNotFound)
	}
	folderID, err := s.storage.EnsureFolder(ctx, sess, s.folderName)
	if err != nil {
		return err
	}
	results := s.archiver.Archive(ctx, sess, folderID, job)
	if assets := archive.Assets(results); len(assets) > 0 {
		_ = s.ledger.Update(taskID, ledger.Mutation{Assets: assets})
	}
	return archive.Partial(results)
}

// Library lists the app folder's assets, newest first. sortByName switches
// to collation order on display name.
func (s *Studio) Library(ctx context.Context, sess *drive.Session, sortByName bool) ([]domain.StoredAsset, error) {
	if sess == nil {
		return nil, domain.ErrNoSession
	}
	folderID, err := s.storage.EnsureFolder(ctx, sess, s.folderName)
	if err != nil {
		return nil, err
	}
	assets, err := s.storage.List(ctx, sess, folderID)
	if err != nil {
		return nil, err
	}
	if sortByName {
		domain.SortAssetsByName(assets)
	}
	return assets, nil
}

// UploadToLibrary stores user-supplied bytes directly in the app folder.
func (s *Studio) UploadToLibrary(ctx context.Context, sess *drive.Session, displayName string, data []byte) (domain.StoredAsset, error) {
	if sess == nil {
		return domain.StoredAsset{}, domain.ErrNoSession
	}
	if displayName == "" {
		displayName = "upload_" + uuid.NewString() + ".png"
	}
	folderID, err := s.storage.EnsureFolder(ctx, sess, s.folderName)
	if err != nil {
		return domain.StoredAsset{}, err
	}
	return s.storage.Upload(ctx, sess, folderID, data, displayName, nil)
}

// DeleteAsset removes one asset from remote storage. Hard delete; no undo.
func (s *Studio) DeleteAsset(ctx context.Context, sess *drive.Session, assetID string) error {
	if sess == nil {
		return domain.ErrNoSession
	}
	return s.storage.Delete(ctx, sess, assetID)
}

// History reads the ledger.
func (s *Studio) History(q ledger.Query) []domain.Job {
	return s.ledger.Jobs(q)
}

// Job returns one ledger entry.
func (s *Studio) Job(id string) (domain.Job, bool) {
	return s.ledger.Get(id)
}
