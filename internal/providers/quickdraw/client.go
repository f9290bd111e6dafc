// Package quickdraw is a thin client for the QuickDraw generation task API.
// It maps one request to one provider call; retry and scheduling live with
// the caller.
package quickdraw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imageforge/internal/domain"
)

const defaultBaseURL = "https://api.aiquickdraw.com"

// TaskState is the provider's status vocabulary, normalized. Any state the
// provider reports that is not success or fail is treated as waiting, so new
// provider states never break polling.
type TaskState string

const (
	TaskWaiting TaskState = "waiting"
	TaskSuccess TaskState = "success"
	TaskFailed  TaskState = "fail"
)

// TaskSnapshot is one provider-reported view of a task. ResultURLs is
// populated only when State is TaskSuccess.
type TaskSnapshot struct {
	State      TaskState
	ResultURLs []string
	FailMsg    string
	CostTimeMS int64
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL       string
	APIKey        string
	HTTPClient    *http.Client
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
	Logger        *zerolog.Logger
}

// Client talks to the generation service. Safe for concurrent use.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	submitTimeout time.Duration
	statusTimeout time.Duration
	logger        *zerolog.Logger
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 60 * time.Second
	}
	statusTimeout := opts.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 30 * time.Second
	}
	return &Client{
		baseURL:       base,
		token:         strings.TrimSpace(opts.APIKey),
		httpClient:    hc,
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
		logger:        opts.Logger,
	}
}

// envelope is the provider's response wrapper. Success requires transport
// status 200 AND Code == 200.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskRequest struct {
	Model       string         `json:"model"`
	Input       map[string]any `json:"input"`
	CallBackURL string         `json:"callBackUrl,omitempty"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

// Submit creates a generation task and returns the provider-issued task id.
// Transport errors, non-200 responses and embedded error codes all collapse
// into a single SubmissionError; the provider message is passed through
// verbatim when present.
func (c *Client) Submit(ctx context.Context, model string, input map[string]any, callbackURL string) (string, error) {
	if c == nil {
		return "", &domain.SubmissionError{Reason: "client not configured"}
	}
	body, err := json.Marshal(createTaskRequest{Model: model, Input: input, CallBackURL: callbackURL})
	if err != nil {
		return "", &domain.SubmissionError{Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/createTask", bytes.NewReader(body))
	if err != nil {
		return "", &domain.SubmissionError{Reason: err.Error()}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.SubmissionError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return "", &domain.SubmissionError{Reason: err.Error()}
	}
	if env.Code != http.StatusOK {
		return "", &domain.SubmissionError{Reason: providerReason(env)}
	}
	var data createTaskData
	if err := json.Unmarshal(env.Data, &data); err != nil || strings.TrimSpace(data.TaskID) == "" {
		return "", &domain.SubmissionError{Reason: "provider returned no task id"}
	}
	if c.logger != nil {
		c.logger.Debug().Str("model", model).Str("task_id", data.TaskID).Msg("quickdraw: task created")
	}
	return data.TaskID, nil
}

type recordInfoData struct {
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailMsg    string `json:"failMsg"`
	CostTime   int64  `json:"costTime"`
}

// resultPayload is the inner document carried inside recordInfoData.ResultJSON.
type resultPayload struct {
	ResultURLs []string `json:"resultUrls"`
}

// FetchStatus retrieves the current state of a task. On success the
// double-encoded result payload is decoded in two explicit steps; a decode
// failure at either step surfaces as a MalformedResultError rather than a
// generic failure.
func (c *Client) FetchStatus(ctx context.Context, taskID string) (TaskSnapshot, error) {
	if strings.TrimSpace(taskID) == "" {
		return TaskSnapshot{}, errors.New("quickdraw: task id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	endpoint := c.baseURL + "/recordInfo?taskId=" + url.QueryEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TaskSnapshot{}, fmt.Errorf("quickdraw: build status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TaskSnapshot{}, fmt.Errorf("quickdraw: status request: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return TaskSnapshot{}, fmt.Errorf("quickdraw: %w", err)
	}
	if env.Code != http.StatusOK {
		return TaskSnapshot{}, fmt.Errorf("quickdraw: status check rejected: %s", providerReason(env))
	}

	var record recordInfoData
	if err := json.Unmarshal(env.Data, &record); err != nil {
		return TaskSnapshot{}, &domain.MalformedResultError{Stage: "record", Cause: err}
	}

	snap := TaskSnapshot{
		State:      normalizeState(record.State),
		FailMsg:    record.FailMsg,
		CostTimeMS: record.CostTime,
	}
	if snap.State == TaskSuccess {
		var payload resultPayload
		if err := json.Unmarshal([]byte(record.ResultJSON), &payload); err != nil {
			return TaskSnapshot{}, &domain.MalformedResultError{Stage: "resultJson", Cause: err}
		}
		// A success must name its outputs; an empty list is as unusable as an
		// undecodable one.
		if len(payload.ResultURLs) == 0 {
			return TaskSnapshot{}, &domain.MalformedResultError{Stage: "resultJson", Cause: errors.New("resultUrls is empty")}
		}
		snap.ResultURLs = payload.ResultURLs
	}
	return snap, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeEnvelope(resp *http.Response) (envelope, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return envelope{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return envelope{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("decode response: %w", err)
	}
	return env, nil
}

func providerReason(env envelope) string {
	if msg := strings.TrimSpace(env.Msg); msg != "" {
		return msg
	}
	return fmt.Sprintf("provider error code %d", env.Code)
}

func normalizeState(state string) TaskState {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "success":
		return TaskSuccess
	case "fail":
		return TaskFailed
	default:
		// Unrecognized states keep the task in waiting; forward compatible
		// with new provider vocabulary.
		return TaskWaiting
	}
}
