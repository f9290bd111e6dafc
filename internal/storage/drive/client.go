package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imageforge/internal/domain"
)

const (
	defaultBaseURL       = "https://www.googleapis.com/drive/v3"
	defaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"

	fileFields = "id,name,mimeType,createdTime,size,description"
)

// Options configures a Client. Zero values fall back to the public Google
// endpoints; tests point both bases at a fake server.
type Options struct {
	BaseURL       string
	UploadBaseURL string
	Timeout       time.Duration
	Logger        *zerolog.Logger
}

// Client performs Drive operations with an explicitly passed Session. Every
// operation is a single attempt; failures surface to the caller unretried.
type Client struct {
	baseURL       string
	uploadBaseURL string
	timeout       time.Duration
	logger        *zerolog.Logger
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	uploadBase := strings.TrimRight(opts.UploadBaseURL, "/")
	if uploadBase == "" {
		uploadBase = defaultUploadBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: base, uploadBaseURL: uploadBase, timeout: timeout, logger: opts.Logger}
}

// UploadMetadata is provenance recorded alongside an uploaded blob. It is
// serialized into the file's description so a later listing can recover the
// originating URL without any local state.
type UploadMetadata struct {
	SourceURL string `json:"original_url,omitempty"`
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

func (m *UploadMetadata) description() string {
	if m == nil || (m.SourceURL == "" && m.Model == "" && m.Prompt == "") {
		return ""
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}

type fileResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	CreatedTime string `json:"createdTime"`
	Size        string `json:"size"`
	Description string `json:"description"`
}

type fileList struct {
	Files []fileResource `json:"files"`
}

// EnsureFolder returns the id of the non-trashed folder with the exact given
// name, creating it only if absent. The lookup hits the provider on every
// call on purpose: the folder is cheap to query and must reflect any
// out-of-band deletion.
func (c *Client) EnsureFolder(ctx context.Context, s *Session, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &domain.ProviderError{Op: "ensure-folder", Cause: errors.New("folder name is required")}
	}

	query := url.Values{}
	query.Set("q", fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType))
	query.Set("fields", "files(id,name)")

	var list fileList
	if err := c.do(ctx, s, http.MethodGet, c.baseURL+"/files?"+query.Encode(), "", nil, &list); err != nil {
		return "", &domain.ProviderError{Op: "ensure-folder", Cause: err}
	}
	if len(list.Files) > 0 {
		return list.Files[0].ID, nil
	}

	body, _ := json.Marshal(map[string]string{"name": name, "mimeType": folderMimeType})
	var created fileResource
	if err := c.do(ctx, s, http.MethodPost, c.baseURL+"/files?fields=id", "application/json", bytes.NewReader(body), &created); err != nil {
		return "", &domain.ProviderError{Op: "ensure-folder", Cause: err}
	}
	if c.logger != nil {
		c.logger.Info().Str("folder", name).Str("folder_id", created.ID).Msg("drive: created app folder")
	}
	return created.ID, nil
}

// Upload stores data as a new file in the folder and then grants public
// read access. When the grant fails after a successful create, the returned
// asset is still populated and the error is a PermissionError carrying the
// new asset id, so the caller can retry the grant without re-uploading.
func (c *Client) Upload(ctx context.Context, s *Session, folderID string, data []byte, displayName string, meta *UploadMetadata) (domain.StoredAsset, error) {
	if len(data) == 0 {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: errors.New("no bytes to upload")}
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = "untitled.png"
	}

	metadata := map[string]any{"name": displayName}
	if folderID != "" {
		metadata["parents"] = []string{folderID}
	}
	if desc := meta.description(); desc != "" {
		metadata["description"] = desc
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: err}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: err}
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: err}
	}
	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {http.DetectContentType(data)}})
	if err != nil {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: err}
	}
	if _, err := mediaPart.Write(data); err != nil {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: err}
	}
	if err := mw.Close(); err != nil {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: err}
	}

	endpoint := c.uploadBaseURL + "/files?uploadType=multipart&fields=" + url.QueryEscape(fileFields)
	contentType := "multipart/related; boundary=" + mw.Boundary()

	var created fileResource
	if err := c.do(ctx, s, http.MethodPost, endpoint, contentType, &buf, &created); err != nil {
		return domain.StoredAsset{}, &domain.ProviderError{Op: "upload", Cause: err}
	}

	asset := c.toAsset(created, folderID)
	if meta != nil {
		asset.SourceURL = meta.SourceURL
	}

	if err := c.GrantPublicRead(ctx, s, created.ID); err != nil {
		return asset, &domain.PermissionError{AssetID: created.ID, Cause: err}
	}
	if c.logger != nil {
		c.logger.Debug().Str("asset_id", created.ID).Str("name", displayName).Msg("drive: uploaded asset")
	}
	return asset, nil
}

// GrantPublicRead makes the file readable by anyone with the link. Exposed
// separately so a failed grant after upload can be retried on its own.
func (c *Client) GrantPublicRead(ctx context.Context, s *Session, assetID string) error {
	body, _ := json.Marshal(map[string]string{"type": "anyone", "role": "reader"})
	endpoint := c.baseURL + "/files/" + url.PathEscape(assetID) + "/permissions"
	if err := c.do(ctx, s, http.MethodPost, endpoint, "application/json", bytes.NewReader(body), nil); err != nil {
		return &domain.ProviderError{Op: "grant", Cause: err}
	}
	return nil
}

// List returns the image assets in the folder, newest first. Ordering is
// done provider-side; the result is a snapshot, and calling again re-queries
// the provider.
func (c *Client) List(ctx context.Context, s *Session, folderID string) ([]domain.StoredAsset, error) {
	terms := []string{"mimeType contains 'image/'", "trashed = false"}
	if folderID != "" {
		terms = append(terms, fmt.Sprintf("'%s' in parents", escapeQuery(folderID)))
	}
	query := url.Values{}
	query.Set("q", strings.Join(terms, " and "))
	query.Set("orderBy", "createdTime desc")
	query.Set("fields", "files("+fileFields+")")

	var list fileList
	if err := c.do(ctx, s, http.MethodGet, c.baseURL+"/files?"+query.Encode(), "", nil, &list); err != nil {
		return nil, &domain.ProviderError{Op: "list", Cause: err}
	}
	assets := make([]domain.StoredAsset, 0, len(list.Files))
	for _, f := range list.Files {
		assets = append(assets, c.toAsset(f, folderID))
	}
	return assets, nil
}

// Delete removes the asset permanently. There is no trash or undo here.
func (c *Client) Delete(ctx context.Context, s *Session, assetID string) error {
	if strings.TrimSpace(assetID) == "" {
		return &domain.ProviderError{Op: "delete", Cause: errors.New("asset id is required")}
	}
	endpoint := c.baseURL + "/files/" + url.PathEscape(assetID)
	if err := c.do(ctx, s, http.MethodDelete, endpoint, "", nil, nil); err != nil {
		return &domain.ProviderError{Op: "delete", Cause: err}
	}
	return nil
}

func (c *Client) toAsset(f fileResource, folderID string) domain.StoredAsset {
	asset := domain.StoredAsset{
		AssetID:      f.ID,
		DisplayName:  f.Name,
		ContainerID:  folderID,
		MIMEType:     f.MimeType,
		PublicURL:    PublicURL(f.ID),
		ThumbnailURL: ThumbnailURL(f.ID),
	}
	if f.CreatedTime != "" {
		if ts, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			asset.CreatedAt = ts
		}
	}
	if f.Size != "" {
		if n, err := strconv.ParseInt(f.Size, 10, 64); err == nil {
			asset.SizeBytes = n
		}
	}
	if f.Description != "" {
		var meta UploadMetadata
		if err := json.Unmarshal([]byte(f.Description), &meta); err == nil {
			asset.SourceURL = meta.SourceURL
		}
	}
	return asset
}

// do issues one request with the session's authenticated client and decodes
// the JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, s *Session, method, endpoint, contentType string, body io.Reader, out any) error {
	if s == nil {
		return domain.ErrNoSession
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError extracts the provider's error message, mapping 404 onto
// ErrNotFound so callers can branch with errors.Is.
func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		msg = strings.TrimSpace(payload.Error.Message)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if resp.StatusCode == http.StatusNotFound {
		if msg != "" {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
		}
		return domain.ErrNotFound
	}
	if msg == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}

// escapeQuery escapes a literal embedded in a Drive query expression.
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
