package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ethosengine/elohim-recovery/internal/services"
)

// RecoveryHandler handles claimant-side recovery requests.
type RecoveryHandler struct {
	recoveryService *services.RecoveryService
}

// NewRecoveryHandler creates a new recovery handler.
func NewRecoveryHandler(recoveryService *services.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recoveryService: recoveryService}
}

// Initiate handles POST /api/recovery/initiate.
func (h *RecoveryHandler) Initiate(c *gin.Context) {
	var req services.InitiateRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	request, err := h.recoveryService.InitiateRecovery(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// Status handles GET /api/recovery/:id/status.
func (h *RecoveryHandler) Status(c *gin.Context) {
	request, err := h.recoveryService.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// Credential handles GET /api/recovery/:id/credential.
func (h *RecoveryHandler) Credential(c *gin.Context) {
	cred, err := h.recoveryService.GetCredential(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cred)
}

// Cancel handles POST /api/recovery/:id/cancel.
func (h *RecoveryHandler) Cancel(c *gin.Context) {
	if err := h.recoveryService.CancelRequest(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// CompleteRequest is the body of POST /api/recovery/:id/complete.
type CompleteRequest struct {
	ClaimToken string `json:"claimToken" binding:"required"`
}

// Complete handles POST /api/recovery/:id/complete.
func (h *RecoveryHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if err := h.recoveryService.CompleteRecovery(c.Request.Context(), c.Param("id"), req.ClaimToken); err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "claimed"})
}

// statusFor maps service errors onto HTTP statuses by message shape; the
// services return plain errors and the wire contract only carries the
// message text.
func statusFor(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "no credential issued"):
		return http.StatusNotFound
	case strings.Contains(msg, "already"),
		strings.Contains(msg, "expired"),
		strings.Contains(msg, "invalid claim token"):
		return http.StatusConflict
	case strings.Contains(msg, "required"),
		strings.Contains(msg, "must be"),
		strings.Contains(msg, "cannot be"),
		strings.Contains(msg, "unknown decision"),
		strings.Contains(msg, "not in progress"),
		strings.Contains(msg, "does not match"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
