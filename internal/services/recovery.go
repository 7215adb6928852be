package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ethosengine/elohim-recovery/internal/config"
	"github.com/ethosengine/elohim-recovery/internal/models"
	"github.com/ethosengine/elohim-recovery/internal/quorum"
	"github.com/ethosengine/elohim-recovery/internal/storage"
)

// RecoveryService owns the durable recovery request lifecycle: creation,
// attestation folding, credential issuance and single-use redemption.
type RecoveryService struct {
	db          *storage.DB
	doorwayID   string
	doorwayName string
	policy      config.RecoveryConfig
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(db *storage.DB, doorwayID, doorwayName string, policy config.RecoveryConfig) *RecoveryService {
	return &RecoveryService{
		db:          db,
		doorwayID:   doorwayID,
		doorwayName: doorwayName,
		policy:      policy,
	}
}

// InitiateRecoveryRequest represents a recovery initiation request.
type InitiateRecoveryRequest struct {
	ClaimedIdentity      string `json:"claimedIdentity" binding:"required"`
	Context              string `json:"context"`
	RequiredAttestations int    `json:"requiredAttestations"`
	DenyThreshold        int    `json:"denyThreshold"`
}

// InitiateRecovery creates a new recovery request. A claimed identity can
// have at most one non-terminal request at a time.
func (s *RecoveryService) InitiateRecovery(ctx context.Context, req InitiateRecoveryRequest) (*models.RecoveryRequest, error) {
	if strings.TrimSpace(req.ClaimedIdentity) == "" {
		return nil, fmt.Errorf("claimed identity is required")
	}

	var active int
	err := s.db.Conn.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM recovery_requests
		 WHERE claimed_identity = ? AND status IN ('pending', 'interviewing', 'attested', 'credential-issued')`,
		req.ClaimedIdentity).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to check active requests: %w", err)
	}
	if active > 0 {
		return nil, fmt.Errorf("an active recovery request already exists for this identity")
	}

	required := req.RequiredAttestations
	if required <= 0 {
		required = s.policy.RequiredAttestations
	}
	denyThreshold := req.DenyThreshold
	if denyThreshold <= 0 {
		denyThreshold = s.policy.DenyThreshold
	}

	now := time.Now().UTC()
	request := &models.RecoveryRequest{
		ID:                   fmt.Sprintf("recovery-%s", uuid.New().String()),
		ClaimedIdentity:      req.ClaimedIdentity,
		DoorwayID:            s.doorwayID,
		Status:               models.StatusPending,
		CreatedAt:            now,
		ExpiresAt:            now.Add(time.Duration(s.policy.RequestTTLHours) * time.Hour),
		Attestations:         []models.Attestation{},
		RequiredAttestations: required,
		DenyThreshold:        denyThreshold,
		ClaimantContext:      req.Context,
	}

	_, err = s.db.Conn.ExecContext(ctx,
		`INSERT INTO recovery_requests
		 (id, claimed_identity, doorway_id, status, created_at, expires_at, required_attestations, deny_threshold, claimant_context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID, request.ClaimedIdentity, request.DoorwayID, request.Status,
		request.CreatedAt, request.ExpiresAt, request.RequiredAttestations,
		request.DenyThreshold, request.ClaimantContext)
	if err != nil {
		return nil, fmt.Errorf("failed to create recovery request: %w", err)
	}

	return request, nil
}

// GetRequest retrieves a recovery request with its full attestation
// history. An overdue non-terminal request is lazily marked expired.
func (s *RecoveryService) GetRequest(ctx context.Context, requestID string) (*models.RecoveryRequest, error) {
	var req models.RecoveryRequest
	err := s.db.Conn.QueryRowContext(ctx,
		`SELECT id, claimed_identity, doorway_id, status, created_at, expires_at,
		        required_attestations, deny_threshold, claimant_context
		 FROM recovery_requests WHERE id = ?`,
		requestID).Scan(
		&req.ID, &req.ClaimedIdentity, &req.DoorwayID, &req.Status,
		&req.CreatedAt, &req.ExpiresAt, &req.RequiredAttestations,
		&req.DenyThreshold, &req.ClaimantContext)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recovery request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery request: %w", err)
	}

	if !req.Status.Terminal() && time.Now().After(req.ExpiresAt) {
		req.Status = models.StatusExpired
		_, err = s.db.Conn.ExecContext(ctx,
			"UPDATE recovery_requests SET status = ? WHERE id = ?",
			models.StatusExpired, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to expire recovery request: %w", err)
		}
	}

	attestations, err := s.attestationsFor(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.Attestations = attestations

	return &req, nil
}

func (s *RecoveryService) attestationsFor(ctx context.Context, requestID string) ([]models.Attestation, error) {
	rows, err := s.db.Conn.QueryContext(ctx,
		`SELECT id, request_id, attester_id, attester_display_name, decision, confidence, timestamp, notes
		 FROM attestations WHERE request_id = ? ORDER BY timestamp, id`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attestations: %w", err)
	}
	defer rows.Close()

	attestations := []models.Attestation{}
	for rows.Next() {
		var a models.Attestation
		err := rows.Scan(&a.ID, &a.RequestID, &a.AttesterID, &a.AttesterDisplayName,
			&a.Decision, &a.Confidence, &a.Timestamp, &a.Notes)
		if err != nil {
			return nil, err
		}
		attestations = append(attestations, a)
	}
	return attestations, rows.Err()
}

// AppendAttestation records an attester's verdict and folds the full
// history through the quorum rules. Deny is checked before quorum, so a
// request that crosses both thresholds in the same batch is denied. When
// quorum is reached a credential is issued in the same transaction.
func (s *RecoveryService) AppendAttestation(ctx context.Context, requestID string, att models.Attestation) (*models.RecoveryRequest, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("recovery request is already %s", req.Status)
	}
	if !att.Decision.Valid() {
		return nil, fmt.Errorf("unknown decision: %s", att.Decision)
	}
	if att.Confidence < 0 || att.Confidence > 100 {
		return nil, fmt.Errorf("confidence must be between 0 and 100")
	}

	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	att.ID = uuid.New().String()
	att.RequestID = requestID
	att.Timestamp = time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attestations (id, request_id, attester_id, attester_display_name, decision, confidence, timestamp, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.RequestID, att.AttesterID, att.AttesterDisplayName,
		att.Decision, att.Confidence, att.Timestamp, att.Notes)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, fmt.Errorf("attester has already attested this request")
		}
		return nil, fmt.Errorf("failed to record attestation: %w", err)
	}

	req.Attestations = append(req.Attestations, att)
	progress := quorum.Evaluate(req.Attestations, req.RequiredAttestations, req.DenyThreshold)

	switch {
	case progress.IsDenied:
		req.Status = models.StatusDenied
	case progress.ThresholdMet:
		// Attestations keep arriving after quorum; the credential is
		// issued only on the transition into attested.
		if req.Status == models.StatusPending || req.Status == models.StatusInterviewing {
			req.Status = models.StatusAttested
			if err := s.issueCredential(ctx, tx, req); err != nil {
				return nil, err
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE recovery_requests SET status = ? WHERE id = ?",
		req.Status, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit attestation: %w", err)
	}

	return req, nil
}

func (s *RecoveryService) issueCredential(ctx context.Context, tx *sql.Tx, req *models.RecoveryRequest) error {
	now := time.Now().UTC()
	cred := models.RecoveryCredential{
		ID:          uuid.New().String(),
		RequestID:   req.ID,
		HumanID:     req.ClaimedIdentity,
		AgentPubKey: uuid.New().String(),
		ClaimToken:  fmt.Sprintf("claim-%s", uuid.New().String()),
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Duration(s.policy.CredentialTTLHours) * time.Hour),
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO recovery_credentials (id, request_id, human_id, agent_pub_key, claim_token, issued_at, expires_at, claimed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		cred.ID, cred.RequestID, cred.HumanID, cred.AgentPubKey,
		cred.ClaimToken, cred.IssuedAt, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to issue credential: %w", err)
	}
	return nil
}

// GetCredential retrieves the credential issued for an attested request.
func (s *RecoveryService) GetCredential(ctx context.Context, requestID string) (*models.RecoveryCredential, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case models.StatusAttested, models.StatusCredentialIssued, models.StatusClaimed:
	default:
		return nil, fmt.Errorf("no credential issued for this request")
	}

	var cred models.RecoveryCredential
	var claimed int
	err = s.db.Conn.QueryRowContext(ctx,
		`SELECT id, request_id, human_id, agent_pub_key, claim_token, issued_at, expires_at, claimed
		 FROM recovery_credentials WHERE request_id = ?`,
		requestID).Scan(&cred.ID, &cred.RequestID, &cred.HumanID, &cred.AgentPubKey,
		&cred.ClaimToken, &cred.IssuedAt, &cred.ExpiresAt, &claimed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no credential issued for this request")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	cred.Claimed = claimed != 0

	// Handing the token to the claimant moves the request forward.
	if req.Status == models.StatusAttested {
		_, err = s.db.Conn.ExecContext(ctx,
			"UPDATE recovery_requests SET status = ? WHERE id = ?",
			models.StatusCredentialIssued, requestID)
		if err != nil {
			return nil, fmt.Errorf("failed to update request status: %w", err)
		}
	}

	return &cred, nil
}

// CompleteRecovery redeems a claim token. The claimed flag transitions
// false to true exactly once; a second redemption fails.
func (s *RecoveryService) CompleteRecovery(ctx context.Context, requestID, claimToken string) error {
	var cred models.RecoveryCredential
	var claimed int
	err := s.db.Conn.QueryRowContext(ctx,
		`SELECT id, claim_token, expires_at, claimed FROM recovery_credentials WHERE request_id = ?`,
		requestID).Scan(&cred.ID, &cred.ClaimToken, &cred.ExpiresAt, &claimed)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no credential issued for this request")
	}
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if claimed != 0 {
		return fmt.Errorf("credential has already been claimed")
	}
	if time.Now().After(cred.ExpiresAt) {
		return fmt.Errorf("credential has expired")
	}
	if subtle.ConstantTimeCompare([]byte(claimToken), []byte(cred.ClaimToken)) != 1 {
		return fmt.Errorf("invalid claim token")
	}

	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The claimed guard in the WHERE clause makes redemption single-use
	// even under concurrent attempts.
	res, err := tx.ExecContext(ctx,
		"UPDATE recovery_credentials SET claimed = 1 WHERE id = ? AND claimed = 0",
		cred.ID)
	if err != nil {
		return fmt.Errorf("failed to claim credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to claim credential: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("credential has already been claimed")
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE recovery_requests SET status = ? WHERE id = ?",
		models.StatusClaimed, requestID)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	return tx.Commit()
}

// CancelRequest deletes a non-terminal recovery request and everything
// attached to it.
func (s *RecoveryService) CancelRequest(ctx context.Context, requestID string) error {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return fmt.Errorf("recovery request is already %s", req.Status)
	}

	_, err = s.db.Conn.ExecContext(ctx,
		"DELETE FROM recovery_requests WHERE id = ?", requestID)
	if err != nil {
		return fmt.Errorf("failed to cancel recovery request: %w", err)
	}
	return nil
}

// Queue lists the unexpired, non-terminal requests as the interviewer-
// facing summary view.
func (s *RecoveryService) Queue(ctx context.Context, interviewerID string) ([]models.PendingRecoveryRequest, error) {
	rows, err := s.db.Conn.QueryContext(ctx,
		`SELECT id FROM recovery_requests
		 WHERE status IN ('pending', 'interviewing') AND expires_at > ?
		 ORDER BY created_at`,
		time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pending := []models.PendingRecoveryRequest{}
	for _, id := range ids {
		req, err := s.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}

		progress := quorum.Evaluate(req.Attestations, req.RequiredAttestations, req.DenyThreshold)
		expiresIn := int64(time.Until(req.ExpiresAt).Seconds())
		alreadyAttested := false
		for _, a := range req.Attestations {
			if a.AttesterID == interviewerID {
				alreadyAttested = true
				break
			}
		}

		priority := "normal"
		if expiresIn < int64((24*time.Hour).Seconds()) || progress.AffirmCount == req.RequiredAttestations-1 {
			priority = "high"
		}

		pending = append(pending, models.PendingRecoveryRequest{
			RequestID:       req.ID,
			MaskedIdentity:  maskIdentity(req.ClaimedIdentity),
			DoorwayName:     s.doorwayName,
			CreatedAt:       req.CreatedAt,
			ExpiresIn:       expiresIn,
			Progress:        progress,
			AlreadyAttested: alreadyAttested,
			Priority:        priority,
		})
	}

	return pending, nil
}

// maskIdentity partially redacts a claimed identity for the queue view.
func maskIdentity(identity string) string {
	runes := []rune(identity)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + "****" + string(runes[len(runes)-2:])
}
