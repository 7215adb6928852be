package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethosengine/elohim-recovery/internal/doorway"
	"github.com/ethosengine/elohim-recovery/internal/models"
)

// fakeAPI is a canned doorway that counts every call, so tests can assert
// an operation issued zero network calls.
type fakeAPI struct {
	calls map[string]int

	initiateResp *models.RecoveryRequest
	initiateErr  error
	statusResp   *models.RecoveryRequest
	statusErr    error
	credResp     *models.RecoveryCredential
	credErr      error
	cancelErr    error
	completeErr  error
	pendingResp  []models.PendingRecoveryRequest
	pendingErr   error
	startResp    *models.RecoveryInterview
	startErr     error
	questions    []models.InterviewQuestion
	questionsErr error
	responseResp *models.InterviewResponse
	responseErr  error
	attestErr    error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int)}
}

func (f *fakeAPI) InitiateRecovery(_ context.Context, req doorway.InitiateRecoveryRequest) (*models.RecoveryRequest, error) {
	f.calls["initiate"]++
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	if f.initiateResp != nil {
		return f.initiateResp, nil
	}
	// Echo a pending request back, the way the doorway does.
	return &models.RecoveryRequest{
		ID:                   "req-1",
		ClaimedIdentity:      req.ClaimedIdentity,
		ClaimantContext:      req.Context,
		Status:               models.StatusPending,
		RequiredAttestations: req.RequiredAttestations,
		DenyThreshold:        req.DenyThreshold,
		CreatedAt:            time.Now(),
		ExpiresAt:            time.Now().Add(48 * time.Hour),
	}, nil
}

func (f *fakeAPI) RequestStatus(_ context.Context, requestID string) (*models.RecoveryRequest, error) {
	f.calls["status"]++
	return f.statusResp, f.statusErr
}

func (f *fakeAPI) Credential(_ context.Context, requestID string) (*models.RecoveryCredential, error) {
	f.calls["credential"]++
	return f.credResp, f.credErr
}

func (f *fakeAPI) CancelRequest(_ context.Context, requestID string) error {
	f.calls["cancel"]++
	return f.cancelErr
}

func (f *fakeAPI) CompleteRecovery(_ context.Context, requestID, claimToken string) error {
	f.calls["complete"]++
	return f.completeErr
}

func (f *fakeAPI) PendingRequests(_ context.Context) ([]models.PendingRecoveryRequest, error) {
	f.calls["pending"]++
	return f.pendingResp, f.pendingErr
}

func (f *fakeAPI) StartInterview(_ context.Context, requestID string) (*models.RecoveryInterview, error) {
	f.calls["start"]++
	return f.startResp, f.startErr
}

func (f *fakeAPI) GenerateQuestions(_ context.Context, requestID string) ([]models.InterviewQuestion, error) {
	f.calls["questions"]++
	return f.questions, f.questionsErr
}

func (f *fakeAPI) SubmitResponse(_ context.Context, requestID, questionID, answer string) (*models.InterviewResponse, error) {
	f.calls["response"]++
	return f.responseResp, f.responseErr
}

func (f *fakeAPI) SubmitAttestation(_ context.Context, requestID string, sub doorway.AttestationSubmission) error {
	f.calls["attest"]++
	return f.attestErr
}

func (f *fakeAPI) totalCalls() int {
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func pendingRequest(atts ...models.Attestation) *models.RecoveryRequest {
	return &models.RecoveryRequest{
		ID:                   "req-1",
		ClaimedIdentity:      "john.doe",
		Status:               models.StatusPending,
		RequiredAttestations: 3,
		DenyThreshold:        2,
		Attestations:         atts,
	}
}

func TestInitiateRecovery_NoDoorwaySelected(t *testing.T) {
	c := NewCoordinator(nil)

	ok := c.InitiateRecovery(context.Background(), "john.doe", "")

	assert.False(t, ok)
	assert.Equal(t, ErrNoDoorwaySelected, c.LastError())
	assert.False(t, c.HasActiveRequest())
	assert.False(t, c.IsLoading())
}

func TestInitiateRecovery_Success(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)

	ok := c.InitiateRecovery(context.Background(), "john.doe", "Lost my device")

	require.True(t, ok)
	assert.True(t, c.HasActiveRequest())
	assert.Empty(t, c.LastError())
	assert.False(t, c.IsLoading())
	assert.Equal(t, "john.doe", c.ActiveRequest().ClaimedIdentity)
	assert.Equal(t, models.StatusPending, c.ActiveRequest().Status)
	assert.Equal(t, 1, api.calls["initiate"])
}

func TestInitiateRecovery_ClearsPriorError(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)
	c.mu.Lock()
	c.errMsg = "stale error"
	c.mu.Unlock()

	require.True(t, c.InitiateRecovery(context.Background(), "john.doe", ""))
	assert.Empty(t, c.LastError())
}

func TestInitiateRecovery_RemoteFailure(t *testing.T) {
	api := newFakeAPI()
	api.initiateErr = errors.New("identity not found on ledger")
	c := NewCoordinator(api)

	ok := c.InitiateRecovery(context.Background(), "nobody", "")

	assert.False(t, ok)
	assert.Equal(t, "identity not found on ledger", c.LastError())
	assert.False(t, c.HasActiveRequest())
	assert.False(t, c.IsLoading())
}

func TestInitiateRecovery_RefusesSecondRequest(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)
	require.True(t, c.InitiateRecovery(context.Background(), "john.doe", ""))

	ok := c.InitiateRecovery(context.Background(), "jane.doe", "")

	assert.False(t, ok)
	assert.Equal(t, ErrRequestInProgress, c.LastError())
	assert.Equal(t, 1, api.calls["initiate"], "second initiate must not reach the network")
	assert.Equal(t, "john.doe", c.ActiveRequest().ClaimedIdentity)
}

func TestRefreshRequestStatus_NoopWithoutRequest(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)

	ok := c.RefreshRequestStatus(context.Background())

	assert.True(t, ok, "nothing to do is not an error")
	assert.Empty(t, c.LastError())
	assert.Zero(t, api.totalCalls())
}

func TestRefreshRequestStatus_NoopWithoutDoorway(t *testing.T) {
	c := NewCoordinator(nil, WithActiveRequest(pendingRequest()))

	assert.True(t, c.RefreshRequestStatus(context.Background()))
	assert.Empty(t, c.LastError())
}

func TestRefreshRequestStatus_ReplacesRequest(t *testing.T) {
	api := newFakeAPI()
	api.statusResp = pendingRequest(models.Attestation{
		ID:       "att-1",
		Decision: models.DecisionAffirm,
	})
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()))

	require.True(t, c.RefreshRequestStatus(context.Background()))
	assert.Len(t, c.ActiveRequest().Attestations, 1)
	assert.Zero(t, api.calls["credential"], "no credential fetch while pending")
}

func TestRefreshRequestStatus_Idempotent(t *testing.T) {
	api := newFakeAPI()
	api.statusResp = pendingRequest()
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()))

	require.True(t, c.RefreshRequestStatus(context.Background()))
	first := *c.ActiveRequest()
	require.True(t, c.RefreshRequestStatus(context.Background()))

	assert.Equal(t, first, *c.ActiveRequest(), "unchanged remote state must yield an unchanged request")
}

func TestRefreshRequestStatus_FetchesCredentialWhenAttested(t *testing.T) {
	api := newFakeAPI()
	attested := pendingRequest()
	attested.Status = models.StatusAttested
	api.statusResp = attested
	api.credResp = &models.RecoveryCredential{
		ID:         "cred-1",
		RequestID:  "req-1",
		ClaimToken: "token-abc",
	}
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()))

	require.True(t, c.RefreshRequestStatus(context.Background()))
	require.NotNil(t, c.Credential())
	assert.Equal(t, "token-abc", c.Credential().ClaimToken)
	assert.True(t, c.IsRecovered())
}

func TestRefreshRequestStatus_CredentialFetchFailureIsSwallowed(t *testing.T) {
	api := newFakeAPI()
	attested := pendingRequest()
	attested.Status = models.StatusAttested
	api.statusResp = attested
	api.credErr = errors.New("credential not ready")
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()))

	ok := c.RefreshRequestStatus(context.Background())

	assert.True(t, ok, "credential fetch failure must not fail the refresh")
	assert.Empty(t, c.LastError())
	assert.Nil(t, c.Credential())
	assert.Equal(t, models.StatusAttested, c.ActiveRequest().Status)
}

func TestRefreshRequestStatus_RemoteFailure(t *testing.T) {
	api := newFakeAPI()
	api.statusErr = errors.New("connection refused")
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()))

	ok := c.RefreshRequestStatus(context.Background())

	assert.False(t, ok)
	assert.Equal(t, "connection refused", c.LastError())
	assert.True(t, c.HasActiveRequest(), "stale local request is kept for retry")
}

func TestCancelRecovery_NoopWithoutRequest(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)

	assert.True(t, c.CancelRecovery(context.Background()))
	assert.Zero(t, api.totalCalls())
}

func TestCancelRecovery_ClearsLocalEvenOnRemoteFailure(t *testing.T) {
	api := newFakeAPI()
	api.cancelErr = errors.New("request not found")
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()))

	ok := c.CancelRecovery(context.Background())

	assert.False(t, ok)
	assert.False(t, c.HasActiveRequest(), "cancellation is a local-state operation")
	assert.Equal(t, "request not found", c.LastError())
}

func TestCancelRecovery_Success(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()))

	assert.True(t, c.CancelRecovery(context.Background()))
	assert.False(t, c.HasActiveRequest())
	assert.Equal(t, 1, api.calls["cancel"])
}

func TestCompleteRecovery_NoCredential(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)

	ok := c.CompleteRecovery(context.Background())

	assert.False(t, ok)
	assert.Equal(t, ErrNoCredential, c.LastError())
	assert.Zero(t, api.totalCalls())
}

func TestCompleteRecovery_ClaimedCredentialRejectedLocally(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api, WithCredential(&models.RecoveryCredential{
		ID:         "cred-1",
		RequestID:  "req-1",
		ClaimToken: "token-abc",
		Claimed:    true,
	}))

	ok := c.CompleteRecovery(context.Background())

	assert.False(t, ok)
	assert.Equal(t, ErrNoCredential, c.LastError())
	assert.Zero(t, api.totalCalls(), "stale claimed credential must be rejected without a round trip")
}

func TestCompleteRecovery_Success(t *testing.T) {
	api := newFakeAPI()
	cred := &models.RecoveryCredential{ID: "cred-1", RequestID: "req-1", ClaimToken: "token-abc"}
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()), WithCredential(cred))

	ok := c.CompleteRecovery(context.Background())

	require.True(t, ok)
	assert.True(t, c.Credential().Claimed)
	assert.False(t, c.HasActiveRequest(), "nothing left to track once recovery completes")
	assert.False(t, c.IsRecovered())
	assert.Equal(t, 1, api.calls["complete"])
}

func TestCompleteRecovery_RemoteFailureLeavesStateForRetry(t *testing.T) {
	api := newFakeAPI()
	api.completeErr = errors.New("token mismatch")
	cred := &models.RecoveryCredential{ID: "cred-1", RequestID: "req-1", ClaimToken: "token-abc"}
	c := NewCoordinator(api, WithActiveRequest(pendingRequest()), WithCredential(cred))

	ok := c.CompleteRecovery(context.Background())

	assert.False(t, ok)
	assert.Equal(t, ErrCompleteFailed, c.LastError())
	assert.False(t, c.Credential().Claimed)
	assert.True(t, c.HasActiveRequest())
}

func TestProgress_NilWithoutRequest(t *testing.T) {
	c := NewCoordinator(newFakeAPI())
	assert.Nil(t, c.Progress())
}

func TestProgress_TwoOfThreeAffirms(t *testing.T) {
	req := pendingRequest(
		models.Attestation{ID: "a1", Decision: models.DecisionAffirm},
		models.Attestation{ID: "a2", Decision: models.DecisionAffirm},
	)
	c := NewCoordinator(newFakeAPI(), WithActiveRequest(req))

	p := c.Progress()

	require.NotNil(t, p)
	assert.Equal(t, models.Progress{
		AffirmCount:     2,
		DenyCount:       0,
		AbstainCount:    0,
		RequiredCount:   3,
		ProgressPercent: 67,
		ThresholdMet:    false,
		IsDenied:        false,
	}, *p)
}

func TestReset_RestoresInitialState(t *testing.T) {
	api := newFakeAPI()
	api.pendingResp = []models.PendingRecoveryRequest{{RequestID: "req-9"}}
	c := NewCoordinator(api,
		WithActiveRequest(pendingRequest()),
		WithCredential(&models.RecoveryCredential{ID: "cred-1"}),
		WithInterview(&models.RecoveryInterview{ID: "iv-1"}),
	)
	require.True(t, c.LoadPendingRequests(context.Background()))
	c.mu.Lock()
	c.errMsg = "boom"
	c.mu.Unlock()

	c.Reset()

	assert.False(t, c.HasActiveRequest())
	assert.Nil(t, c.Credential())
	assert.Nil(t, c.Interview())
	assert.Zero(t, c.PendingCount())
	assert.Empty(t, c.LastError())
	assert.False(t, c.IsLoading())
	assert.Nil(t, c.Progress())
}
