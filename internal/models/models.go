package models

import (
	"time"
)

// RequestStatus is the lifecycle state of a recovery request.
type RequestStatus string

const (
	StatusPending          RequestStatus = "pending"
	StatusInterviewing     RequestStatus = "interviewing"
	StatusAttested         RequestStatus = "attested"
	StatusCredentialIssued RequestStatus = "credential-issued"
	StatusClaimed          RequestStatus = "claimed"
	StatusDenied           RequestStatus = "denied"
	StatusExpired          RequestStatus = "expired"
	StatusCancelled        RequestStatus = "cancelled"
)

// Terminal reports whether no further attestations can change the request.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusClaimed, StatusDenied, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Decision is an attester's verdict on a recovery request.
type Decision string

const (
	DecisionAffirm  Decision = "affirm"
	DecisionDeny    Decision = "deny"
	DecisionAbstain Decision = "abstain"
)

// Valid reports whether d is one of the three known decisions.
func (d Decision) Valid() bool {
	return d == DecisionAffirm || d == DecisionDeny || d == DecisionAbstain
}

// RecoveryRequest is a claim that claimedIdentity belongs to the caller.
type RecoveryRequest struct {
	ID                   string        `db:"id" json:"id"`
	ClaimedIdentity      string        `db:"claimed_identity" json:"claimedIdentity"`
	DoorwayID            string        `db:"doorway_id" json:"doorwayId"`
	Status               RequestStatus `db:"status" json:"status"`
	CreatedAt            time.Time     `db:"created_at" json:"createdAt"`
	ExpiresAt            time.Time     `db:"expires_at" json:"expiresAt"`
	Attestations         []Attestation `json:"attestations"`
	RequiredAttestations int           `db:"required_attestations" json:"requiredAttestations"`
	DenyThreshold        int           `db:"deny_threshold" json:"denyThreshold"`
	ClaimantContext      string        `db:"claimant_context" json:"claimantContext,omitempty"`
}

// Attestation is one attester's verdict. Immutable once created; the
// attestation list is append-only and the quorum calculation folds over
// the full history.
type Attestation struct {
	ID                  string    `db:"id" json:"id"`
	RequestID           string    `db:"request_id" json:"requestId"`
	AttesterID          string    `db:"attester_id" json:"attesterId"`
	AttesterDisplayName string    `db:"attester_display_name" json:"attesterDisplayName"`
	Decision            Decision  `db:"decision" json:"decision"`
	Confidence          int       `db:"confidence" json:"confidence"`
	Timestamp           time.Time `db:"timestamp" json:"timestamp"`
	Notes               string    `db:"notes" json:"notes,omitempty"`
}

// RecoveryCredential is the single-use proof that quorum was reached.
// Claimed transitions false to true exactly once.
type RecoveryCredential struct {
	ID          string    `db:"id" json:"id"`
	RequestID   string    `db:"request_id" json:"requestId"`
	HumanID     string    `db:"human_id" json:"humanId"`
	AgentPubKey string    `db:"agent_pub_key" json:"agentPubKey"`
	ClaimToken  string    `db:"claim_token" json:"claimToken"`
	IssuedAt    time.Time `db:"issued_at" json:"issuedAt"`
	ExpiresAt   time.Time `db:"expires_at" json:"expiresAt"`
	Claimed     bool      `db:"claimed" json:"claimed"`
}

// InterviewStatus is the lifecycle state of an interview.
type InterviewStatus string

const (
	InterviewInProgress InterviewStatus = "in-progress"
	InterviewCompleted  InterviewStatus = "completed"
	InterviewAbandoned  InterviewStatus = "abandoned"
)

// RecoveryInterview is a structured verification session conducted by one
// interviewer against one recovery request.
type RecoveryInterview struct {
	ID                     string              `db:"id" json:"id"`
	RequestID              string              `db:"request_id" json:"requestId"`
	InterviewerID          string              `db:"interviewer_id" json:"interviewerId"`
	InterviewerDisplayName string              `db:"interviewer_display_name" json:"interviewerDisplayName"`
	Status                 InterviewStatus     `db:"status" json:"status"`
	Questions              []InterviewQuestion `json:"questions"`
	Responses              []InterviewResponse `json:"responses"`
	StartedAt              time.Time           `db:"started_at" json:"startedAt"`
}

// QuestionType categorizes interview questions.
type QuestionType string

const (
	QuestionNetworkHistory QuestionType = "network-history"
	QuestionRelationship   QuestionType = "relationship"
)

// InterviewQuestion is one question posed to the claimant.
type InterviewQuestion struct {
	ID         string       `db:"id" json:"id"`
	Type       QuestionType `db:"type" json:"type"`
	Question   string       `db:"question" json:"question"`
	Difficulty int          `db:"difficulty" json:"difficulty"`
	Points     int          `db:"points" json:"points"`
	Verifiable bool         `db:"verifiable" json:"verifiable"`
}

// InterviewResponse is an assessed answer to an interview question.
// Correct is nil when the question is not verifiable against ledger data
// and the interviewer must judge the answer themselves.
type InterviewResponse struct {
	ID            string    `db:"id" json:"id"`
	QuestionID    string    `db:"question_id" json:"questionId"`
	Answer        string    `db:"answer" json:"answer"`
	Correct       *bool     `db:"correct" json:"correct,omitempty"`
	PointsAwarded int       `db:"points_awarded" json:"pointsAwarded"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submittedAt"`
}

// Progress is the derived quorum snapshot for an attestation list. It is
// never persisted; it is recomputed on demand so it cannot drift from the
// attestations it summarizes.
type Progress struct {
	AffirmCount     int  `json:"affirmCount"`
	DenyCount       int  `json:"denyCount"`
	AbstainCount    int  `json:"abstainCount"`
	RequiredCount   int  `json:"requiredCount"`
	ProgressPercent int  `json:"progressPercent"`
	ThresholdMet    bool `json:"thresholdMet"`
	IsDenied        bool `json:"isDenied"`
}

// PendingRecoveryRequest is the interviewer-facing summary of a request
// awaiting attestations.
type PendingRecoveryRequest struct {
	RequestID       string    `json:"requestId"`
	MaskedIdentity  string    `json:"maskedIdentity"`
	DoorwayName     string    `json:"doorwayName"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresIn       int64     `json:"expiresIn"`
	Progress        Progress  `json:"progress"`
	AlreadyAttested bool      `json:"alreadyAttested"`
	Priority        string    `json:"priority"`
}
