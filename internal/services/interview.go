package services

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ethosengine/elohim-recovery/internal/models"
	"github.com/ethosengine/elohim-recovery/internal/storage"
)

// AnswerSource cross-checks a verifiable question against ledger data for
// the claimed identity. The reference doorway ships without a ledger, so
// the source is optional; questions without an expected answer are left
// to the interviewer's judgment.
type AnswerSource interface {
	ExpectedAnswer(claimedIdentity string, questionType models.QuestionType, question string) (string, bool)
}

// InterviewService handles interview sessions: question generation,
// response assessment and attestation hand-off.
type InterviewService struct {
	db            *storage.DB
	recovery      *RecoveryService
	answers       AnswerSource
	questionCount int
}

// NewInterviewService creates a new interview service. answers may be nil.
func NewInterviewService(db *storage.DB, recovery *RecoveryService, answers AnswerSource, questionCount int) *InterviewService {
	if questionCount <= 0 {
		questionCount = 5
	}
	return &InterviewService{
		db:            db,
		recovery:      recovery,
		answers:       answers,
		questionCount: questionCount,
	}
}

// questionTemplates is the pool interviews draw from. Verifiable entries
// can be cross-checked against ledger data when an AnswerSource is wired.
var questionTemplates = []models.InterviewQuestion{
	{Type: models.QuestionNetworkHistory, Question: "Roughly when did you create your network identity?", Difficulty: 1, Points: 5, Verifiable: true},
	{Type: models.QuestionNetworkHistory, Question: "Which doorway did you first join the network through?", Difficulty: 2, Points: 10, Verifiable: true},
	{Type: models.QuestionRelationship, Question: "How do you know the interviewer conducting this session?", Difficulty: 2, Points: 10, Verifiable: false},
	{Type: models.QuestionNetworkHistory, Question: "Name a learning path you completed in the last year.", Difficulty: 3, Points: 15, Verifiable: true},
	{Type: models.QuestionRelationship, Question: "Who vouched for you when you joined the network?", Difficulty: 3, Points: 15, Verifiable: false},
	{Type: models.QuestionNetworkHistory, Question: "What was the last governance proposal you voted on?", Difficulty: 4, Points: 25, Verifiable: true},
	{Type: models.QuestionRelationship, Question: "Name two members of your steward circle.", Difficulty: 4, Points: 25, Verifiable: false},
	{Type: models.QuestionNetworkHistory, Question: "Which piece of content did you most recently bookmark?", Difficulty: 5, Points: 30, Verifiable: true},
}

// StartInterview begins an interview for the given request, flipping the
// request to interviewing. Starting twice for the same interviewer
// returns the existing in-progress interview.
func (s *InterviewService) StartInterview(ctx context.Context, requestID, interviewerID, displayName string) (*models.RecoveryInterview, error) {
	req, err := s.recovery.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending && req.Status != models.StatusInterviewing {
		return nil, fmt.Errorf("recovery request is %s and cannot be interviewed", req.Status)
	}

	if existing, err := s.interviewFor(ctx, requestID, interviewerID); err == nil {
		if existing.Status == models.InterviewInProgress {
			return existing, nil
		}
		return nil, fmt.Errorf("interviewer has already completed an interview for this request")
	}

	interview := &models.RecoveryInterview{
		ID:                     uuid.New().String(),
		RequestID:              requestID,
		InterviewerID:          interviewerID,
		InterviewerDisplayName: displayName,
		Status:                 models.InterviewInProgress,
		Questions:              []models.InterviewQuestion{},
		Responses:              []models.InterviewResponse{},
		StartedAt:              time.Now().UTC(),
	}

	_, err = s.db.Conn.ExecContext(ctx,
		`INSERT INTO interviews (id, request_id, interviewer_id, interviewer_display_name, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		interview.ID, interview.RequestID, interview.InterviewerID,
		interview.InterviewerDisplayName, interview.Status, interview.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create interview: %w", err)
	}

	if req.Status == models.StatusPending {
		_, err = s.db.Conn.ExecContext(ctx,
			"UPDATE recovery_requests SET status = ? WHERE id = ?",
			models.StatusInterviewing, requestID)
		if err != nil {
			return nil, fmt.Errorf("failed to update request status: %w", err)
		}
	}

	return interview, nil
}

// GenerateQuestions replaces the interview's question set with a fresh
// random draw from the template pool.
func (s *InterviewService) GenerateQuestions(ctx context.Context, requestID, interviewerID string) ([]models.InterviewQuestion, error) {
	interview, err := s.interviewFor(ctx, requestID, interviewerID)
	if err != nil {
		return nil, err
	}
	if interview.Status != models.InterviewInProgress {
		return nil, fmt.Errorf("interview is not in progress")
	}

	req, err := s.recovery.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	pool := make([]models.InterviewQuestion, len(questionTemplates))
	copy(pool, questionTemplates)
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	count := s.questionCount
	if count > len(pool) {
		count = len(pool)
	}
	picked := pool[:count]

	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM interview_questions WHERE interview_id = ?", interview.ID); err != nil {
		return nil, fmt.Errorf("failed to clear questions: %w", err)
	}

	questions := make([]models.InterviewQuestion, 0, count)
	for i, tmpl := range picked {
		q := tmpl
		q.ID = uuid.New().String()

		expected := ""
		if q.Verifiable && s.answers != nil {
			if answer, ok := s.answers.ExpectedAnswer(req.ClaimedIdentity, q.Type, q.Question); ok {
				expected = answer
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO interview_questions (id, interview_id, type, question, difficulty, points, verifiable, expected_answer, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, interview.ID, q.Type, q.Question, q.Difficulty, q.Points,
			boolToInt(q.Verifiable), expected, i)
		if err != nil {
			return nil, fmt.Errorf("failed to store question: %w", err)
		}
		questions = append(questions, q)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit questions: %w", err)
	}

	return questions, nil
}

// SubmitResponse records and assesses the claimant's answer to one
// question of the in-progress interview.
func (s *InterviewService) SubmitResponse(ctx context.Context, requestID, interviewerID, questionID, answer string) (*models.InterviewResponse, error) {
	interview, err := s.interviewFor(ctx, requestID, interviewerID)
	if err != nil {
		return nil, err
	}
	if interview.Status != models.InterviewInProgress {
		return nil, fmt.Errorf("interview is not in progress")
	}

	var q models.InterviewQuestion
	var verifiable int
	var expected string
	err = s.db.Conn.QueryRowContext(ctx,
		`SELECT id, type, question, difficulty, points, verifiable, expected_answer
		 FROM interview_questions WHERE id = ? AND interview_id = ?`,
		questionID, interview.ID).Scan(
		&q.ID, &q.Type, &q.Question, &q.Difficulty, &q.Points, &verifiable, &expected)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("question not found in this interview")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	q.Verifiable = verifiable != 0

	resp := &models.InterviewResponse{
		ID:          uuid.New().String(),
		QuestionID:  q.ID,
		Answer:      answer,
		SubmittedAt: time.Now().UTC(),
	}

	if q.Verifiable && expected != "" {
		correct := normalizeAnswer(answer) == normalizeAnswer(expected)
		resp.Correct = &correct
		if correct {
			resp.PointsAwarded = q.Points
		}
	}

	var correctCol interface{}
	if resp.Correct != nil {
		correctCol = boolToInt(*resp.Correct)
	}

	_, err = s.db.Conn.ExecContext(ctx,
		`INSERT INTO interview_responses (id, interview_id, question_id, answer, correct, points_awarded, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, interview.ID, resp.QuestionID, resp.Answer, correctCol,
		resp.PointsAwarded, resp.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store response: %w", err)
	}

	return resp, nil
}

// AttestationSubmission represents an interviewer's verdict submission.
type AttestationSubmission struct {
	InterviewID string          `json:"interviewId" binding:"required"`
	Decision    models.Decision `json:"decision" binding:"required"`
	Confidence  int             `json:"confidence"`
	Notes       string          `json:"notes"`
}

// SubmitAttestation completes the interview and folds the verdict into
// the request's attestation history.
func (s *InterviewService) SubmitAttestation(ctx context.Context, requestID, interviewerID string, sub AttestationSubmission) error {
	interview, err := s.interviewFor(ctx, requestID, interviewerID)
	if err != nil {
		return err
	}
	if interview.ID != sub.InterviewID {
		return fmt.Errorf("interview does not match this request")
	}
	if interview.Status != models.InterviewInProgress {
		return fmt.Errorf("interview is not in progress")
	}

	_, err = s.recovery.AppendAttestation(ctx, requestID, models.Attestation{
		AttesterID:          interview.InterviewerID,
		AttesterDisplayName: interview.InterviewerDisplayName,
		Decision:            sub.Decision,
		Confidence:          sub.Confidence,
		Notes:               sub.Notes,
	})
	if err != nil {
		return err
	}

	_, err = s.db.Conn.ExecContext(ctx,
		"UPDATE interviews SET status = ? WHERE id = ?",
		models.InterviewCompleted, interview.ID)
	if err != nil {
		return fmt.Errorf("failed to complete interview: %w", err)
	}

	return nil
}

// interviewFor loads the interviewer's interview for a request, with its
// questions and responses in order.
func (s *InterviewService) interviewFor(ctx context.Context, requestID, interviewerID string) (*models.RecoveryInterview, error) {
	var iv models.RecoveryInterview
	err := s.db.Conn.QueryRowContext(ctx,
		`SELECT id, request_id, interviewer_id, interviewer_display_name, status, started_at
		 FROM interviews WHERE request_id = ? AND interviewer_id = ?`,
		requestID, interviewerID).Scan(
		&iv.ID, &iv.RequestID, &iv.InterviewerID, &iv.InterviewerDisplayName,
		&iv.Status, &iv.StartedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no interview found for this request")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}

	iv.Questions = []models.InterviewQuestion{}
	qRows, err := s.db.Conn.QueryContext(ctx,
		`SELECT id, type, question, difficulty, points, verifiable
		 FROM interview_questions WHERE interview_id = ? ORDER BY position`,
		iv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	defer qRows.Close()
	for qRows.Next() {
		var q models.InterviewQuestion
		var verifiable int
		if err := qRows.Scan(&q.ID, &q.Type, &q.Question, &q.Difficulty, &q.Points, &verifiable); err != nil {
			return nil, err
		}
		q.Verifiable = verifiable != 0
		iv.Questions = append(iv.Questions, q)
	}
	if err := qRows.Err(); err != nil {
		return nil, err
	}

	iv.Responses = []models.InterviewResponse{}
	rRows, err := s.db.Conn.QueryContext(ctx,
		`SELECT id, question_id, answer, correct, points_awarded, submitted_at
		 FROM interview_responses WHERE interview_id = ? ORDER BY submitted_at, id`,
		iv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	defer rRows.Close()
	for rRows.Next() {
		var r models.InterviewResponse
		var correct sql.NullBool
		if err := rRows.Scan(&r.ID, &r.QuestionID, &r.Answer, &correct, &r.PointsAwarded, &r.SubmittedAt); err != nil {
			return nil, err
		}
		if correct.Valid {
			v := correct.Bool
			r.Correct = &v
		}
		iv.Responses = append(iv.Responses, r)
	}
	if err := rRows.Err(); err != nil {
		return nil, err
	}

	return &iv, nil
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
