// Package archive bridges successful generation jobs to remote storage,
// producing one stored asset per result URL.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"imageforge/internal/domain"
	"imageforge/internal/storage/drive"
)

const maxAssetBytes = 64 << 20

// Uploader is the single storage operation the archiver needs.
type Uploader interface {
	Upload(ctx context.Context, s *drive.Session, folderID string, data []byte, displayName string, meta *drive.UploadMetadata) (domain.StoredAsset, error)
}

// Options configures an Archiver.
type Options struct {
	HTTPClient      *http.Client
	DownloadTimeout time.Duration
	Logger          *zerolog.Logger
}

// Result is the outcome for one result URL. Exactly one of Asset or Err is
// meaningful; Err may be a PermissionError, in which case Asset is also
// populated.
type Result struct {
	SourceURL string
	Asset     domain.StoredAsset
	Err       error
}

// Archiver downloads generation results and hands them to storage.
type Archiver struct {
	storage         Uploader
	httpClient      *http.Client
	downloadTimeout time.Duration
	logger          *zerolog.Logger
}

// New builds an Archiver writing through storage.
func New(storage Uploader, opts Options) *Archiver {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.DownloadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Archiver{storage: storage, httpClient: hc, downloadTimeout: timeout, logger: opts.Logger}
}

// Archive processes job.ResultURLs in order: download, derive a filename as
// {modelSlug}_{jobID}_{index}.png, upload. Each URL is handled independently
// so one failure never aborts the rest; callers get one Result per URL in
// input order.
func (a *Archiver) Archive(ctx context.Context, sess *drive.Session, folderID string, job domain.Job) []Result {
	prompt, _ := job.Input["prompt"].(string)
	results := make([]Result, 0, len(job.ResultURLs))
	for i, srcURL := range job.ResultURLs {
		res := Result{SourceURL: srcURL}
		data, err := a.download(ctx, srcURL)
		if err != nil {
			res.Err = err
			if a.logger != nil {
				a.logger.Warn().Err(err).Str("url", srcURL).Msg("archive: download failed")
			}
			results = append(results, res)
			continue
		}
		name := fmt.Sprintf("%s_%s_%d.png", domain.ModelSlug(job.Model), job.ID, i)
		meta := &drive.UploadMetadata{SourceURL: srcURL, Model: job.Model, Prompt: prompt}
		asset, err := a.storage.Upload(ctx, sess, folderID, data, name, meta)
		res.Asset = asset
		res.Err = err
		results = append(results, res)
	}
	return results
}

// download fetches one result blob with a single attempt and a fixed
// deadline.
func (a *Archiver) download(ctx context.Context, srcURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: build download request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive: download: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("archive: read download: %w", err)
	}
	return data, nil
}

// Partial folds per-item results into the caller-facing error: nil when
// every item succeeded, a PartialArchiveError otherwise. Items that uploaded
// but failed their permission grant count as failures while their asset is
// still reported in the succeeded list, since the blob does exist remotely.
func Partial(results []Result) error {
	var succeeded []domain.StoredAsset
	var failed []domain.ArchiveFailure
	for _, r := range results {
		if r.Err == nil {
			succeeded = append(succeeded, r.Asset)
			continue
		}
		if r.Asset.AssetID != "" {
			succeeded = append(succeeded, r.Asset)
		}
		failed = append(failed, domain.ArchiveFailure{SourceURL: r.SourceURL, Reason: r.Err.Error()})
	}
	if len(failed) == 0 {
		return nil
	}
	return &domain.PartialArchiveError{Succeeded: succeeded, Failed: failed}
}

// Assets extracts the stored assets from a batch, in input order.
func Assets(results []Result) []domain.StoredAsset {
	var assets []domain.StoredAsset
	for _, r := range results {
		if r.Asset.AssetID != "" {
			assets = append(assets, r.Asset)
		}
	}
	return assets
}
