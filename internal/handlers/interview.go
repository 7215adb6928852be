package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ethosengine/elohim-recovery/internal/middleware"
	"github.com/ethosengine/elohim-recovery/internal/services"
)

// InterviewHandler handles interviewer-side requests.
type InterviewHandler struct {
	recoveryService  *services.RecoveryService
	interviewService *services.InterviewService
}

// NewInterviewHandler creates a new interview handler.
func NewInterviewHandler(recoveryService *services.RecoveryService, interviewService *services.InterviewService) *InterviewHandler {
	return &InterviewHandler{
		recoveryService:  recoveryService,
		interviewService: interviewService,
	}
}

// Queue handles GET /api/recovery/queue.
func (h *InterviewHandler) Queue(c *gin.Context) {
	requests, err := h.recoveryService.Queue(c.Request.Context(), middleware.GetInterviewerID(c))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Start handles POST /api/recovery/:id/interview/start.
func (h *InterviewHandler) Start(c *gin.Context) {
	interview, err := h.interviewService.StartInterview(c.Request.Context(),
		c.Param("id"), middleware.GetInterviewerID(c), middleware.GetDisplayName(c))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, interview)
}

// Questions handles POST /api/recovery/:id/interview/questions.
func (h *InterviewHandler) Questions(c *gin.Context) {
	questions, err := h.interviewService.GenerateQuestions(c.Request.Context(),
		c.Param("id"), middleware.GetInterviewerID(c))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// ResponseRequest is the body of POST /api/recovery/:id/interview/response.
type ResponseRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer" binding:"required"`
}

// Response handles POST /api/recovery/:id/interview/response.
func (h *InterviewHandler) Response(c *gin.Context) {
	var req ResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	resp, err := h.interviewService.SubmitResponse(c.Request.Context(),
		c.Param("id"), middleware.GetInterviewerID(c), req.QuestionID, req.Answer)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": resp})
}

// Attestation handles POST /api/recovery/:id/interview/attestation.
func (h *InterviewHandler) Attestation(c *gin.Context) {
	var sub services.AttestationSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	err := h.interviewService.SubmitAttestation(c.Request.Context(),
		c.Param("id"), middleware.GetInterviewerID(c), sub)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "attested"})
}
