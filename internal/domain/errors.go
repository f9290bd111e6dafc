package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrNoSession    = errors.New("storage not connected")
)

// SubmissionError reports that a generation job could not be created. Network
// failures and provider-level rejections are deliberately collapsed into one
// outcome; Reason carries the provider message verbatim when one exists.
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return "submission failed: " + e.Reason
}

// AuthError reports malformed credential material or a provider rejection
// while establishing a storage session.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("storage auth: %v", e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ProviderError wraps a failed remote-storage operation. Operations are
// single-attempt; the error is surfaced to the caller without retries.
type ProviderError struct {
	Op    string
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// PermissionError reports an upload whose public-read grant failed after the
// blob itself was created. The asset exists remotely; AssetID lets the caller
// retry the grant without re-uploading.
type PermissionError struct {
	AssetID string
	Cause   error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("asset %s uploaded but not publicly viewable: %v", e.AssetID, e.Cause)
}

func (e *PermissionError) Unwrap() error { return e.Cause }

// MalformedResultError reports a result payload that failed to decode. The
// provider double-encodes results (a JSON string nested inside JSON); Stage
// identifies which of the two decode steps broke.
type MalformedResultError struct {
	Stage string
	Cause error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed result payload (%s): %v", e.Stage, e.Cause)
}

func (e *MalformedResultError) Unwrap() error { return e.Cause }

// ArchiveFailure records one result URL that could not be archived.
type ArchiveFailure struct {
	SourceURL string `json:"sourceUrl"`
	Reason    string `json:"reason"`
}

// PartialArchiveError reports an archival batch in which at least one upload
// failed. Both lists are always populated from the batch, never collapsed
// into a single boolean.
type PartialArchiveError struct {
	Succeeded []StoredAsset
	Failed    []ArchiveFailure
}

func (e *PartialArchiveError) Error() string {
	return fmt.Sprintf("archived %d of %d results", len(e.Succeeded), len(e.Succeeded)+len(e.Failed))
}
