package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/bazai/stems-api/internal/config"
	"github.com/bazai/stems-api/internal/model"
)

// StemSeparator defines the upstream operations the reconciler needs:
// submitting a separation job and querying its status.
type StemSeparator interface {
	Submit(ctx context.Context, req *SeparationRequest) (*SubmitResult, error)
	RecordInfo(ctx context.Context, taskID string) (*RecordInfoResult, error)
}

// UpstreamError is any non-success answer from the generation API. The
// raw body is kept for diagnostics; it is never swallowed at this layer.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("kie API error (status %d): %s", e.Status, e.Body)
}

// SeparationRequest is the submission payload sent upstream.
type SeparationRequest struct {
	OriginalTaskID string        `json:"taskId"`
	AudioID        string        `json:"audioId"`
	Kind           model.JobKind `json:"type"`
	CallbackURL    string        `json:"callBackUrl"`
}

// SubmitResult carries the upstream-assigned task id plus the verbatim
// envelope, which callers pass through to the front-end.
type SubmitResult struct {
	TaskID string
	Raw    json.RawMessage
}

// RecordInfoResult is the raw, uninterpreted status payload. Data keeps
// whatever shape the upstream returned; normalization happens elsewhere.
type RecordInfoResult struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// KieClient implements StemSeparator against the KIE vocal-removal API.
type KieClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewKieClient(cfg *config.KieConfig) *KieClient {
	return &KieClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Submit starts a separation job upstream. Invalid input fails before
// any network call.
func (c *KieClient) Submit(ctx context.Context, req *SeparationRequest) (*SubmitResult, error) {
	if req.OriginalTaskID == "" || req.AudioID == "" {
		return nil, fmt.Errorf("taskId and audioId are required")
	}
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("invalid separation type: %s", req.Kind)
	}

	var envelope RecordInfoResult
	raw, err := c.post(ctx, "/api/v1/vocal-removal/generate", req, &envelope)
	if err != nil {
		return nil, err
	}
	if envelope.Code != 0 && envelope.Code != http.StatusOK {
		return nil, &UpstreamError{Status: envelope.Code, Body: string(raw)}
	}

	var data struct {
		TaskID  string `json:"taskId"`
		TaskID2 string `json:"task_id"`
	}
	if len(envelope.Data) > 0 {
		_ = json.Unmarshal(envelope.Data, &data)
	}
	taskID := data.TaskID
	if taskID == "" {
		taskID = data.TaskID2
	}
	if taskID == "" {
		return nil, &UpstreamError{Status: envelope.Code, Body: string(raw)}
	}

	return &SubmitResult{TaskID: taskID, Raw: raw}, nil
}

// RecordInfo fetches the current upstream status for a task. The payload
// is returned as-is, including malformed or partial shapes.
func (c *KieClient) RecordInfo(ctx context.Context, taskID string) (*RecordInfoResult, error) {
	endpoint := "/api/v1/vocal-removal/record-info?taskId=" + url.QueryEscape(taskID)
	var envelope RecordInfoResult
	if _, err := c.get(ctx, endpoint, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

func (c *KieClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) (json.RawMessage, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

func (c *KieClient) get(ctx context.Context, endpoint string, result interface{}) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes the call and decodes the JSON answer. The raw body
// is returned alongside so callers can pass it through or log it.
func (c *KieClient) doRequest(req *http.Request, result interface{}) (json.RawMessage, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[KIE API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[KIE API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[KIE API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[KIE API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[KIE API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.String(), err)
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *KieClient) IsConfigured() bool {
	return c.apiKey != ""
}
