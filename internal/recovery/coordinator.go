// Package recovery implements the client-side recovery coordination
// protocol: the claimant state machine and the interviewer sub-protocol.
//
// The Coordinator owns all client-visible state. Every operation that
// reaches the network catches failures internally and reports them through
// the error signal; no operation panics or returns a Go error to its
// caller. The remote doorway is the source of truth and
// RefreshRequestStatus reconciles any local staleness.
package recovery

import (
	"context"
	"sync"

	"github.com/ethosengine/elohim-recovery/internal/doorway"
	"github.com/ethosengine/elohim-recovery/internal/models"
	"github.com/ethosengine/elohim-recovery/internal/quorum"
)

// Error signal values for local precondition and configuration failures.
const (
	ErrNoDoorwaySelected = "no doorway selected"
	ErrNoActiveInterview = "No active interview"
	ErrNoCredential      = "no valid credential available"
	ErrCompleteFailed    = "failed to complete recovery"
	ErrRequestInProgress = "a recovery request is already in progress"
)

// API is the doorway surface the Coordinator depends on. *doorway.Client
// implements it.
type API interface {
	InitiateRecovery(ctx context.Context, req doorway.InitiateRecoveryRequest) (*models.RecoveryRequest, error)
	RequestStatus(ctx context.Context, requestID string) (*models.RecoveryRequest, error)
	Credential(ctx context.Context, requestID string) (*models.RecoveryCredential, error)
	CancelRequest(ctx context.Context, requestID string) error
	CompleteRecovery(ctx context.Context, requestID, claimToken string) error
	PendingRequests(ctx context.Context) ([]models.PendingRecoveryRequest, error)
	StartInterview(ctx context.Context, requestID string) (*models.RecoveryInterview, error)
	GenerateQuestions(ctx context.Context, requestID string) ([]models.InterviewQuestion, error)
	SubmitResponse(ctx context.Context, requestID, questionID, answer string) (*models.InterviewResponse, error)
	SubmitAttestation(ctx context.Context, requestID string, sub doorway.AttestationSubmission) error
}

// DefaultRequiredAttestations and DefaultDenyThreshold are the quorum
// parameters posted with every new recovery request.
const (
	DefaultRequiredAttestations = 3
	DefaultDenyThreshold        = 2
)

// Coordinator drives a recovery session. One instance per active session;
// state is guarded by a mutex so callers may poll signals while an
// operation is in flight.
type Coordinator struct {
	mu         sync.Mutex
	api        API
	active     *models.RecoveryRequest
	credential *models.RecoveryCredential
	interview  *models.RecoveryInterview
	pending    []models.PendingRecoveryRequest
	errMsg     string
	loading    bool
}

// Option injects initial state into a Coordinator, used by the CLI to
// resume a persisted session and by tests to seed preconditions.
type Option func(*Coordinator)

// WithActiveRequest seeds the active recovery request.
func WithActiveRequest(req *models.RecoveryRequest) Option {
	return func(c *Coordinator) { c.active = req }
}

// WithCredential seeds the held credential.
func WithCredential(cred *models.RecoveryCredential) Option {
	return func(c *Coordinator) { c.credential = cred }
}

// WithInterview seeds the interview being conducted.
func WithInterview(iv *models.RecoveryInterview) Option {
	return func(c *Coordinator) { c.interview = iv }
}

// NewCoordinator creates a Coordinator. A nil api means no doorway is
// selected; operations that need the network fail without issuing any call.
func NewCoordinator(api API, opts ...Option) *Coordinator {
	c := &Coordinator{api: api}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitiateRecovery posts a new recovery request for claimedIdentity. It
// refuses to run while another request is held locally. On success the
// returned request becomes the active request and any prior error is
// cleared.
func (c *Coordinator) InitiateRecovery(ctx context.Context, claimedIdentity, claimantContext string) bool {
	c.mu.Lock()
	if c.api == nil {
		c.errMsg = ErrNoDoorwaySelected
		c.mu.Unlock()
		return false
	}
	if c.active != nil {
		c.errMsg = ErrRequestInProgress
		c.mu.Unlock()
		return false
	}
	c.loading = true
	c.mu.Unlock()

	req, err := c.api.InitiateRecovery(ctx, doorway.InitiateRecoveryRequest{
		ClaimedIdentity:      claimedIdentity,
		Context:              claimantContext,
		RequiredAttestations: DefaultRequiredAttestations,
		DenyThreshold:        DefaultDenyThreshold,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.errMsg = err.Error()
		return false
	}
	c.active = req
	c.errMsg = ""
	return true
}

// RefreshRequestStatus replaces the active request with the doorway's
// current view. With no active request or no doorway it is a no-op, not an
// error. When the refreshed status shows quorum was reached, the issued
// credential is fetched in the same pass; that fetch failing does not fail
// the refresh.
func (c *Coordinator) RefreshRequestStatus(ctx context.Context) bool {
	c.mu.Lock()
	if c.api == nil || c.active == nil {
		c.mu.Unlock()
		return true
	}
	requestID := c.active.ID
	c.loading = true
	c.mu.Unlock()

	req, err := c.api.RequestStatus(ctx, requestID)

	var cred *models.RecoveryCredential
	if err == nil && (req.Status == models.StatusAttested || req.Status == models.StatusCredentialIssued) {
		cred, _ = c.api.Credential(ctx, requestID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.errMsg = err.Error()
		return false
	}
	c.active = req
	if cred != nil {
		c.credential = cred
	}
	return true
}

// CancelRecovery cancels the active request. The local request is cleared
// whether or not the doorway acknowledged the cancellation; the remote
// call is a best-effort notification.
func (c *Coordinator) CancelRecovery(ctx context.Context) bool {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return true
	}
	requestID := c.active.ID
	api := c.api
	c.loading = true
	c.mu.Unlock()

	var err error
	if api != nil {
		err = api.CancelRequest(ctx, requestID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.active = nil
	if err != nil {
		c.errMsg = err.Error()
		return false
	}
	return true
}

// CompleteRecovery redeems the held credential. The local claimed check
// runs before any network call, so a stale claimed credential is rejected
// without a round trip. On success the credential is marked claimed and
// the active request cleared; on remote failure state is left untouched
// for retry.
func (c *Coordinator) CompleteRecovery(ctx context.Context) bool {
	c.mu.Lock()
	if c.credential == nil || c.credential.Claimed {
		c.errMsg = ErrNoCredential
		c.mu.Unlock()
		return false
	}
	if c.api == nil {
		c.errMsg = ErrNoDoorwaySelected
		c.mu.Unlock()
		return false
	}
	requestID := c.credential.RequestID
	claimToken := c.credential.ClaimToken
	c.loading = true
	c.mu.Unlock()

	err := c.api.CompleteRecovery(ctx, requestID, claimToken)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.errMsg = ErrCompleteFailed
		return false
	}
	c.credential.Claimed = true
	c.active = nil
	c.errMsg = ""
	return true
}

// ActiveRequest returns the active recovery request, or nil.
func (c *Coordinator) ActiveRequest() *models.RecoveryRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// HasActiveRequest reports whether a recovery request is held locally.
func (c *Coordinator) HasActiveRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Credential returns the held credential, or nil.
func (c *Coordinator) Credential() *models.RecoveryCredential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential
}

// IsRecovered reports whether a redeemable credential is held: present and
// not yet claimed. This is the predicate CompleteRecovery checks, so UIs
// gating on it never race the local precondition.
func (c *Coordinator) IsRecovered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential != nil && !c.credential.Claimed
}

// Progress derives the quorum snapshot from the active request's
// attestations, or nil if there is no active request. It is recomputed on
// every call and never cached.
func (c *Coordinator) Progress() *models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	p := quorum.Evaluate(c.active.Attestations, c.active.RequiredAttestations, c.active.DenyThreshold)
	return &p
}

// LastError returns the current error signal, empty when none.
func (c *Coordinator) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// ClearError dismisses the error signal.
func (c *Coordinator) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = ""
}

// IsLoading reports whether an operation is in flight.
func (c *Coordinator) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Reset restores every signal to its initial empty value.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
	c.credential = nil
	c.interview = nil
	c.pending = nil
	c.errMsg = ""
	c.loading = false
}
