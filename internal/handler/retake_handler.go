package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grade-flow-api/internal/models"
	"github.com/noah-isme/grade-flow-api/internal/service"
	appErrors "github.com/noah-isme/grade-flow-api/pkg/errors"
	"github.com/noah-isme/grade-flow-api/pkg/response"
)

// RetakeHandler exposes the remediation endpoints.
type RetakeHandler struct {
	retakes *service.RetakeService
}

// NewRetakeHandler constructs the handler.
func NewRetakeHandler(retakes *service.RetakeService) *RetakeHandler {
	return &RetakeHandler{retakes: retakes}
}

// CreateCourse godoc
// @Summary Open a course retake
// @Tags Retakes
// @Accept json
// @Produce json
// @Param payload body service.CreateRetakeRequest true "Retake payload"
// @Success 201 {object} response.Envelope
// @Router /retakes/course [post]
func (h *RetakeHandler) CreateCourse(c *gin.Context) {
	h.create(c, h.retakes.CreateCourseRetake)
}

// CreateExam godoc
// @Summary Open an exam retake
// @Tags Retakes
// @Accept json
// @Produce json
// @Param payload body service.CreateRetakeRequest true "Retake payload"
// @Success 201 {object} response.Envelope
// @Router /retakes/exam [post]
func (h *RetakeHandler) CreateExam(c *gin.Context) {
	h.create(c, h.retakes.CreateExamRetake)
}

func (h *RetakeHandler) create(c *gin.Context, fn func(ctx context.Context, req service.CreateRetakeRequest, actor models.Actor) (*models.RetakeAttempt, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateRetakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	attempt, err := fn(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attempt)
}

// Get godoc
// @Summary Fetch a retake attempt
// @Tags Retakes
// @Produce json
// @Param id path string true "Attempt id"
// @Success 200 {object} response.Envelope
// @Router /retakes/{id} [get]
func (h *RetakeHandler) Get(c *gin.Context) {
	attempt, err := h.retakes.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}

// UpdateResult godoc
// @Summary Score the current retake attempt
// @Tags Retakes
// @Accept json
// @Produce json
// @Param id path string true "Attempt id"
// @Param payload body service.RetakeScoreRequest true "Score edits"
// @Success 200 {object} response.Envelope
// @Router /retakes/{id}/result [patch]
func (h *RetakeHandler) UpdateResult(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RetakeScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	attempt, err := h.retakes.UpdateRetakeResult(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}

// Promote godoc
// @Summary Promote a passing attempt onto the primary record
// @Tags Retakes
// @Produce json
// @Param id path string true "Attempt id"
// @Success 200 {object} response.Envelope
// @Router /retakes/{id}/promote [post]
func (h *RetakeHandler) Promote(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.retakes.Promote(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// History godoc
// @Summary Remediation trail for a student and subject
// @Tags Retakes
// @Produce json
// @Param studentId query string true "Student id"
// @Param subjectId query string true "Subject id"
// @Success 200 {object} response.Envelope
// @Router /retakes/history [get]
func (h *RetakeHandler) History(c *gin.Context) {
	studentID := c.Query("studentId")
	subjectID := c.Query("subjectId")
	if studentID == "" || subjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId and subjectId are required"))
		return
	}
	history, err := h.retakes.GetHistory(c.Request.Context(), studentID, subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Needing godoc
// @Summary Finalized records whose outcome calls for a retake
// @Tags Retakes
// @Produce json
// @Param classId query string false "Filter by class"
// @Param subjectId query string false "Filter by subject"
// @Param termId query string false "Filter by term"
// @Success 200 {object} response.Envelope
// @Router /retakes/needing [get]
func (h *RetakeHandler) Needing(c *gin.Context) {
	filter := models.GradeRecordFilter{
		ClassID:   c.Query("classId"),
		SubjectID: c.Query("subjectId"),
		TermID:    c.Query("termId"),
	}
	candidates, err := h.retakes.ListNeedingRetake(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}
