package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethosengine/elohim-recovery/internal/models"
)

func conductingInterview() *models.RecoveryInterview {
	return &models.RecoveryInterview{
		ID:            "iv-1",
		RequestID:     "req-1",
		InterviewerID: "hazel",
		Status:        models.InterviewInProgress,
		StartedAt:     time.Now(),
	}
}

func TestLoadPendingRequests_NoDoorwaySelected(t *testing.T) {
	c := NewCoordinator(nil)

	assert.False(t, c.LoadPendingRequests(context.Background()))
	assert.Equal(t, ErrNoDoorwaySelected, c.LastError())
	assert.Zero(t, c.PendingCount())
}

func TestLoadPendingRequests_ReplacesQueueWholesale(t *testing.T) {
	api := newFakeAPI()
	api.pendingResp = []models.PendingRecoveryRequest{
		{RequestID: "req-1", MaskedIdentity: "jo****oe"},
		{RequestID: "req-2", MaskedIdentity: "ha***el"},
	}
	c := NewCoordinator(api)

	require.True(t, c.LoadPendingRequests(context.Background()))
	assert.Equal(t, 2, c.PendingCount())

	api.pendingResp = nil
	require.True(t, c.LoadPendingRequests(context.Background()))
	assert.Zero(t, c.PendingCount(), "empty result is a valid, non-error outcome")
	assert.Empty(t, c.LastError())
}

func TestLoadPendingRequests_RemoteFailureKeepsQueue(t *testing.T) {
	api := newFakeAPI()
	api.pendingResp = []models.PendingRecoveryRequest{{RequestID: "req-1"}}
	c := NewCoordinator(api)
	require.True(t, c.LoadPendingRequests(context.Background()))

	api.pendingErr = errors.New("connection refused")
	assert.False(t, c.LoadPendingRequests(context.Background()))
	assert.Equal(t, "connection refused", c.LastError())
	assert.Equal(t, 1, c.PendingCount())
}

func TestStartInterview_NoDoorwaySelected(t *testing.T) {
	c := NewCoordinator(nil)

	assert.False(t, c.StartInterview(context.Background(), "req-1"))
	assert.Equal(t, ErrNoDoorwaySelected, c.LastError())
	assert.Nil(t, c.Interview())
}

func TestStartInterview_Success(t *testing.T) {
	api := newFakeAPI()
	api.startResp = conductingInterview()
	c := NewCoordinator(api)

	require.True(t, c.StartInterview(context.Background(), "req-1"))
	require.NotNil(t, c.Interview())
	assert.Equal(t, "iv-1", c.Interview().ID)
	assert.Empty(t, c.LastError())
}

func TestStartInterview_FailureLeavesNoInterview(t *testing.T) {
	api := newFakeAPI()
	api.startErr = errors.New("request already terminal")
	c := NewCoordinator(api)

	assert.False(t, c.StartInterview(context.Background(), "req-1"))
	assert.Nil(t, c.Interview())
	assert.Equal(t, "request already terminal", c.LastError())
}

func TestGenerateQuestions_EmptyOnAnyFailure(t *testing.T) {
	t.Run("no doorway", func(t *testing.T) {
		c := NewCoordinator(nil)
		assert.Empty(t, c.GenerateQuestions(context.Background(), "req-1"))
		assert.Empty(t, c.LastError(), "convenience fetch never surfaces an error")
	})

	t.Run("remote failure", func(t *testing.T) {
		api := newFakeAPI()
		api.questionsErr = errors.New("boom")
		c := NewCoordinator(api)
		assert.Empty(t, c.GenerateQuestions(context.Background(), "req-1"))
		assert.Empty(t, c.LastError())
	})
}

func TestGenerateQuestions_Success(t *testing.T) {
	api := newFakeAPI()
	api.questions = []models.InterviewQuestion{
		{ID: "q-1", Type: models.QuestionNetworkHistory, Difficulty: 2, Points: 10, Verifiable: true},
		{ID: "q-2", Type: models.QuestionRelationship, Difficulty: 4, Points: 25},
	}
	c := NewCoordinator(api)

	questions := c.GenerateQuestions(context.Background(), "req-1")
	assert.Len(t, questions, 2)
}

func TestSubmitResponse_NoopWithoutInterview(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)

	resp := c.SubmitResponse(context.Background(), "q-1", "we met at the garden")

	assert.Nil(t, resp)
	assert.Empty(t, c.LastError())
	assert.Zero(t, api.totalCalls())
}

func TestSubmitResponse_AppendsAssessedResponse(t *testing.T) {
	correct := true
	api := newFakeAPI()
	api.responseResp = &models.InterviewResponse{
		ID:            "resp-1",
		QuestionID:    "q-1",
		Answer:        "we met at the garden",
		Correct:       &correct,
		PointsAwarded: 10,
	}
	c := NewCoordinator(api, WithInterview(conductingInterview()))

	resp := c.SubmitResponse(context.Background(), "q-1", "we met at the garden")

	require.NotNil(t, resp)
	require.NotNil(t, resp.Correct)
	assert.True(t, *resp.Correct)
	require.Len(t, c.Interview().Responses, 1)
	assert.Equal(t, "resp-1", c.Interview().Responses[0].ID)
}

func TestSubmitResponse_RemoteFailure(t *testing.T) {
	api := newFakeAPI()
	api.responseErr = errors.New("interview not in progress")
	c := NewCoordinator(api, WithInterview(conductingInterview()))

	resp := c.SubmitResponse(context.Background(), "q-1", "answer")

	assert.Nil(t, resp)
	assert.Equal(t, "interview not in progress", c.LastError())
	assert.Empty(t, c.Interview().Responses)
}

func TestSubmitAttestation_NoActiveInterview(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api)

	ok := c.SubmitAttestation(context.Background(), models.DecisionDeny, 90, "Suspicious answers")

	assert.False(t, ok)
	assert.Equal(t, "No active interview", c.LastError())
	assert.Zero(t, api.totalCalls())
}

func TestSubmitAttestation_ClearsInterviewAndRefreshesQueue(t *testing.T) {
	api := newFakeAPI()
	api.pendingResp = []models.PendingRecoveryRequest{{RequestID: "req-2"}}
	c := NewCoordinator(api, WithInterview(conductingInterview()))

	ok := c.SubmitAttestation(context.Background(), models.DecisionAffirm, 85, "")

	require.True(t, ok)
	assert.Nil(t, c.Interview(), "the interviewer's job for this request is done")
	assert.Equal(t, 1, api.calls["attest"])
	assert.Equal(t, 1, api.calls["pending"], "queue refresh is triggered")
	assert.Equal(t, 1, c.PendingCount())
}

func TestSubmitAttestation_QueueRefreshFailureIsBestEffort(t *testing.T) {
	api := newFakeAPI()
	api.pendingErr = errors.New("queue unavailable")
	c := NewCoordinator(api, WithInterview(conductingInterview()))

	ok := c.SubmitAttestation(context.Background(), models.DecisionAbstain, 50, "unsure")

	assert.True(t, ok, "attestation succeeded; the refresh is best-effort")
	assert.Nil(t, c.Interview())
	assert.Empty(t, c.LastError())
}

func TestSubmitAttestation_RemoteFailureKeepsInterview(t *testing.T) {
	api := newFakeAPI()
	api.attestErr = errors.New("already attested")
	c := NewCoordinator(api, WithInterview(conductingInterview()))

	ok := c.SubmitAttestation(context.Background(), models.DecisionAffirm, 70, "")

	assert.False(t, ok)
	assert.Equal(t, "already attested", c.LastError())
	assert.NotNil(t, c.Interview())
}

func TestAbandonInterview_PurelyLocal(t *testing.T) {
	api := newFakeAPI()
	c := NewCoordinator(api, WithInterview(conductingInterview()))

	c.AbandonInterview()

	assert.Nil(t, c.Interview())
	assert.Zero(t, api.totalCalls(), "abandon must not notify the doorway")
}
