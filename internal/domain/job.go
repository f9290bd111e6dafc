package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusWaiting JobStatus = "waiting"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
	JobStatusTimeout JobStatus = "timeout"
)

// Terminal reports whether no further transitions can occur from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed, JobStatusTimeout:
		return true
	}
	return false
}

// Job tracks one generation/edit request from submission to its terminal
// outcome. The ID is issued by the generation provider and is immutable once
// assigned. ResultURLs is populated only on success; FailureReason only on
// failure or timeout.
type Job struct {
	ID            string         `json:"id"`
	Model         string         `json:"model"`
	Input         map[string]any `json:"input"`
	Status        JobStatus      `json:"status"`
	SubmittedAt   time.Time      `json:"submittedAt"`
	CompletedAt   time.Time      `json:"completedAt,omitzero"`
	ResultURLs    []string       `json:"resultUrls,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
	CostTimeMS    int64          `json:"costTimeMs,omitempty"`
	Archived      []StoredAsset  `json:"archived,omitempty"`
}

// Known generation model identifiers. The parameter knobs each model accepts
// are provider-defined and passed through opaquely; only the presence checks
// in ValidateInput are enforced locally.
const (
	ModelTextToImage  = "bytedance/flux-dev"
	ModelQwenEdit     = "qwen/image-edit"
	ModelSeedreamEdit = "bytedance/seedream-v4-edit"
)

// editModels lists models that require at least one input image URL.
var editModels = map[string]bool{
	ModelQwenEdit:                 true,
	ModelSeedreamEdit:             true,
	"bytedance/qwen2-vl-72b-edit": true,
}

// RequiresSourceImage reports whether the model consumes input images.
func RequiresSourceImage(model string) bool {
	return editModels[model]
}

// ValidateInput applies the boundary checks for a generation request: the
// model must be named, the prompt must be non-empty, and edit models must
// reference at least one input image. Everything else in the parameter bag is
// provider territory and is not validated here.
func ValidateInput(model string, input map[string]any) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidInput)
	}
	prompt, _ := input["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if RequiresSourceImage(model) && !hasImageURL(input) {
		return fmt.Errorf("%w: model %s requires at least one image url", ErrInvalidInput, model)
	}
	return nil
}

func hasImageURL(input map[string]any) bool {
	if s, ok := input["image_url"].(string); ok && strings.TrimSpace(s) != "" {
		return true
	}
	switch urls := input["image_urls"].(type) {
	case []string:
		for _, u := range urls {
			if strings.TrimSpace(u) != "" {
				return true
			}
		}
	case []any:
		for _, v := range urls {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return true
			}
		}
	}
	return false
}

// ModelSlug flattens a model identifier into a filename-safe token, e.g.
// "qwen/image-edit" becomes "qwen-image-edit".
func ModelSlug(model string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(model)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
