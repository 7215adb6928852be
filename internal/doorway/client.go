// Package doorway is the HTTP client for a remote doorway's recovery API.
package doorway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ethosengine/elohim-recovery/internal/config"
	"github.com/ethosengine/elohim-recovery/internal/models"
)

// Client handles communication with the selected doorway.
type Client struct {
	config     *config.DoorwayConfig
	httpClient *http.Client
}

// NewClient creates a new doorway client.
func NewClient(cfg *config.DoorwayConfig) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the configured doorway name.
func (c *Client) Name() string {
	return c.config.Name
}

// apiError is a non-2xx response carrying the doorway's structured message.
type apiError struct {
	Status  int
	Message string
	Op      string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s failed with status: %d", e.Op, e.Status)
}

// errorBody is the shape of every doorway error response.
type errorBody struct {
	Message string `json:"message"`
}

// InitiateRecoveryRequest is the body of POST /api/recovery/initiate.
type InitiateRecoveryRequest struct {
	ClaimedIdentity      string `json:"claimedIdentity"`
	Context              string `json:"context,omitempty"`
	RequiredAttestations int    `json:"requiredAttestations"`
	DenyThreshold        int    `json:"denyThreshold"`
}

// AttestationSubmission is the body of POST .../interview/attestation.
type AttestationSubmission struct {
	InterviewID string          `json:"interviewId"`
	Decision    models.Decision `json:"decision"`
	Confidence  int             `json:"confidence"`
	Notes       string          `json:"notes,omitempty"`
}

// InitiateRecovery creates a new recovery request on the doorway.
func (c *Client) InitiateRecovery(ctx context.Context, req InitiateRecoveryRequest) (*models.RecoveryRequest, error) {
	var result models.RecoveryRequest
	if err := c.doJSON(ctx, http.MethodPost, "/api/recovery/initiate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestStatus fetches the current state of a recovery request.
func (c *Client) RequestStatus(ctx context.Context, requestID string) (*models.RecoveryRequest, error) {
	var result models.RecoveryRequest
	path := fmt.Sprintf("/api/recovery/%s/status", requestID)
	if err := c.getWithRetry(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Credential fetches the issued credential for an attested request.
func (c *Client) Credential(ctx context.Context, requestID string) (*models.RecoveryCredential, error) {
	var result models.RecoveryCredential
	path := fmt.Sprintf("/api/recovery/%s/credential", requestID)
	if err := c.getWithRetry(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelRequest cancels a recovery request on the doorway.
func (c *Client) CancelRequest(ctx context.Context, requestID string) error {
	path := fmt.Sprintf("/api/recovery/%s/cancel", requestID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// CompleteRecovery redeems the claim token to finalize recovery.
func (c *Client) CompleteRecovery(ctx context.Context, requestID, claimToken string) error {
	path := fmt.Sprintf("/api/recovery/%s/complete", requestID)
	body := map[string]string{"claimToken": claimToken}
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// PendingRequests fetches the interviewer's queue.
func (c *Client) PendingRequests(ctx context.Context) ([]models.PendingRecoveryRequest, error) {
	var result struct {
		Requests []models.PendingRecoveryRequest `json:"requests"`
	}
	if err := c.getWithRetry(ctx, "/api/recovery/queue", &result); err != nil {
		return nil, err
	}
	return result.Requests, nil
}

// StartInterview begins an interview for a recovery request.
func (c *Client) StartInterview(ctx context.Context, requestID string) (*models.RecoveryInterview, error) {
	var result models.RecoveryInterview
	path := fmt.Sprintf("/api/recovery/%s/interview/start", requestID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateQuestions requests a fresh question set for an interview.
func (c *Client) GenerateQuestions(ctx context.Context, requestID string) ([]models.InterviewQuestion, error) {
	var result struct {
		Questions []models.InterviewQuestion `json:"questions"`
	}
	path := fmt.Sprintf("/api/recovery/%s/interview/questions", requestID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Questions, nil
}

// SubmitResponse submits the claimant's answer and returns the assessed
// response.
func (c *Client) SubmitResponse(ctx context.Context, requestID, questionID, answer string) (*models.InterviewResponse, error) {
	var result struct {
		Response models.InterviewResponse `json:"response"`
	}
	path := fmt.Sprintf("/api/recovery/%s/interview/response", requestID)
	body := map[string]string{"questionId": questionID, "answer": answer}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result.Response, nil
}

// SubmitAttestation submits the interviewer's verdict.
func (c *Client) SubmitAttestation(ctx context.Context, requestID string, sub AttestationSubmission) error {
	path := fmt.Sprintf("/api/recovery/%s/interview/attestation", requestID)
	return c.doJSON(ctx, http.MethodPost, path, sub, nil)
}

// getWithRetry performs an idempotent GET, retrying transient network
// failures with exponential backoff. Application errors are permanent.
func (c *Client) getWithRetry(ctx context.Context, path string, out interface{}) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(func() error {
		err := c.doJSON(ctx, http.MethodGet, path, nil, out)
		if err != nil {
			if _, ok := err.(*apiError); ok {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, bo)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("doorway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &apiError{Status: resp.StatusCode, Message: eb.Message, Op: method + " " + path}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
