package recovery

import (
	"context"

	"github.com/ethosengine/elohim-recovery/internal/doorway"
	"github.com/ethosengine/elohim-recovery/internal/models"
)

// Interviewer-side operations. Only one interview can be conducted per
// Coordinator session; starting a new one replaces nothing until the
// doorway confirms it.

// LoadPendingRequests replaces the local queue with the interviewer's
// current queue. An empty queue is a valid, non-error outcome.
func (c *Coordinator) LoadPendingRequests(ctx context.Context) bool {
	c.mu.Lock()
	if c.api == nil {
		c.errMsg = ErrNoDoorwaySelected
		c.mu.Unlock()
		return false
	}
	c.loading = true
	c.mu.Unlock()

	requests, err := c.api.PendingRequests(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.errMsg = err.Error()
		return false
	}
	c.pending = requests
	return true
}

// StartInterview begins an interview for the given request. On success it
// becomes the interview being conducted; on failure none is.
func (c *Coordinator) StartInterview(ctx context.Context, requestID string) bool {
	c.mu.Lock()
	if c.api == nil {
		c.errMsg = ErrNoDoorwaySelected
		c.mu.Unlock()
		return false
	}
	c.loading = true
	c.mu.Unlock()

	iv, err := c.api.StartInterview(ctx, requestID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.interview = nil
		c.errMsg = err.Error()
		return false
	}
	c.interview = iv
	c.errMsg = ""
	return true
}

// GenerateQuestions fetches a fresh question set for the given request.
// This is a convenience fetch the UI can retry, so any failure yields an
// empty list instead of an error signal.
func (c *Coordinator) GenerateQuestions(ctx context.Context, requestID string) []models.InterviewQuestion {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()
	if api == nil {
		return []models.InterviewQuestion{}
	}

	questions, err := api.GenerateQuestions(ctx, requestID)
	if err != nil || questions == nil {
		return []models.InterviewQuestion{}
	}
	return questions
}

// SubmitResponse submits the claimant's answer to a question and appends
// the assessed response to the interview. With no interview being
// conducted it is a no-op returning nil, with no network call.
func (c *Coordinator) SubmitResponse(ctx context.Context, questionID, answer string) *models.InterviewResponse {
	c.mu.Lock()
	if c.interview == nil || c.api == nil {
		c.mu.Unlock()
		return nil
	}
	requestID := c.interview.RequestID
	c.loading = true
	c.mu.Unlock()

	resp, err := c.api.SubmitResponse(ctx, requestID, questionID, answer)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.errMsg = err.Error()
		return nil
	}
	if c.interview != nil {
		c.interview.Responses = append(c.interview.Responses, *resp)
	}
	return resp
}

// SubmitAttestation casts the interviewer's verdict for the interview
// being conducted. On success the interview is cleared and the pending
// queue refreshed best-effort so the completed item disappears.
func (c *Coordinator) SubmitAttestation(ctx context.Context, decision models.Decision, confidence int, notes string) bool {
	c.mu.Lock()
	if c.interview == nil {
		c.errMsg = ErrNoActiveInterview
		c.mu.Unlock()
		return false
	}
	if c.api == nil {
		c.errMsg = ErrNoDoorwaySelected
		c.mu.Unlock()
		return false
	}
	sub := doorway.AttestationSubmission{
		InterviewID: c.interview.ID,
		Decision:    decision,
		Confidence:  confidence,
		Notes:       notes,
	}
	requestID := c.interview.RequestID
	c.loading = true
	c.mu.Unlock()

	err := c.api.SubmitAttestation(ctx, requestID, sub)

	var refreshed []models.PendingRecoveryRequest
	var refreshErr error
	if err == nil {
		refreshed, refreshErr = c.api.PendingRequests(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.errMsg = err.Error()
		return false
	}
	c.interview = nil
	c.errMsg = ""
	if refreshErr == nil {
		c.pending = refreshed
	}
	return true
}

// AbandonInterview discards the interview being conducted without casting
// a verdict. Purely local; the doorway is not notified.
func (c *Coordinator) AbandonInterview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interview = nil
}

// Interview returns the interview being conducted, or nil.
func (c *Coordinator) Interview() *models.RecoveryInterview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interview
}

// PendingRequests returns the loaded interviewer queue.
func (c *Coordinator) PendingRequests() []models.PendingRecoveryRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// PendingCount is the length of the loaded queue.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
