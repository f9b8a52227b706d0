package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grade-flow-api/internal/models"
	"github.com/noah-isme/grade-flow-api/internal/service"
	appErrors "github.com/noah-isme/grade-flow-api/pkg/errors"
	"github.com/noah-isme/grade-flow-api/pkg/export"
	"github.com/noah-isme/grade-flow-api/pkg/response"
)

// GradeRecordHandler exposes the grade lifecycle endpoints.
type GradeRecordHandler struct {
	lifecycle       *service.LifecycleService
	csv             *export.CSVExporter
	pdf             *export.PDFExporter
	historyPageSize int
}

// NewGradeRecordHandler constructs the handler.
func NewGradeRecordHandler(lifecycle *service.LifecycleService, csv *export.CSVExporter, pdf *export.PDFExporter, historyPageSize int) *GradeRecordHandler {
	if historyPageSize <= 0 {
		historyPageSize = 20
	}
	return &GradeRecordHandler{lifecycle: lifecycle, csv: csv, pdf: pdf, historyPageSize: historyPageSize}
}

type transitionRequest struct {
	ToState models.GradeState `json:"to_state" binding:"required"`
	Reason  *string           `json:"reason,omitempty"`
}

type rollbackRequest struct {
	ToVersion int64   `json:"to_version" binding:"required"`
	Reason    *string `json:"reason,omitempty"`
}

type reasonRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// Create godoc
// @Summary Open a grade record in DRAFT
// @Tags GradeRecords
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeRecordRequest true "Record payload"
// @Success 201 {object} response.Envelope
// @Router /grade-records [post]
func (h *GradeRecordHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateGradeRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.lifecycle.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List grade records
// @Tags GradeRecords
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param subjectId query string false "Filter by subject"
// @Param termId query string false "Filter by term"
// @Param state query string false "Filter by lifecycle state"
// @Success 200 {object} response.Envelope
// @Router /grade-records [get]
func (h *GradeRecordHandler) List(c *gin.Context) {
	filter, err := h.scopedFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.lifecycle.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Fetch a grade record
// @Tags GradeRecords
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id} [get]
func (h *GradeRecordHandler) Get(c *gin.Context) {
	record, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// UpdateScores godoc
// @Summary Update scores on a grade record
// @Tags GradeRecords
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body service.ScoreUpdateRequest true "Score edits"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/scores [patch]
func (h *GradeRecordHandler) UpdateScores(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ScoreUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.lifecycle.UpdateScores(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Submit godoc
// @Summary Submit a DRAFT record for review
// @Tags GradeRecords
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/submit [post]
func (h *GradeRecordHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	record, err := h.lifecycle.SubmitForReview(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Transition godoc
// @Summary Move a record along the lifecycle
// @Tags GradeRecords
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body transitionRequest true "Target state"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/transition [post]
func (h *GradeRecordHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.lifecycle.Transition(c.Request.Context(), c.Param("id"), req.ToState, actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkTransition godoc
// @Summary Move several records over the same edge
// @Tags GradeRecords
// @Accept json
// @Produce json
// @Param payload body service.BulkTransitionRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /grade-records/bulk-transition [post]
func (h *GradeRecordHandler) BulkTransition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BulkTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.lifecycle.BulkTransition(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Rollback godoc
// @Summary Restore a record's scores from a prior version
// @Tags GradeRecords
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body rollbackRequest true "Target version"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/rollback [post]
func (h *GradeRecordHandler) Rollback(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.lifecycle.Rollback(c.Request.Context(), c.Param("id"), req.ToVersion, actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// UnlockFinalized godoc
// @Summary Reopen a FINALIZED record
// @Tags GradeRecords
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body reasonRequest true "Unlock reason"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/unlock-finalized [post]
func (h *GradeRecordHandler) UnlockFinalized(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.lifecycle.UnlockFinalized(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AcquireEditLock godoc
// @Summary Take the advisory edit lock
// @Tags GradeRecords
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/edit-lock [post]
func (h *GradeRecordHandler) AcquireEditLock(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.AcquireEditLock(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "locked"}, nil)
}

// ReleaseEditLock godoc
// @Summary Release the advisory edit lock
// @Tags GradeRecords
// @Produce json
// @Param id path string true "Record id"
// @Success 204 "No Content"
// @Router /grade-records/{id}/edit-lock [delete]
func (h *GradeRecordHandler) ReleaseEditLock(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.ReleaseEditLock(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary List version snapshots of a record
// @Tags GradeRecords
// @Produce json
// @Param id path string true "Record id"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/history [get]
func (h *GradeRecordHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(h.historyPageSize)))
	if pageSize < 1 {
		pageSize = h.historyPageSize
	}
	snapshots, pagination, err := h.lifecycle.GetVersionHistory(c.Request.Context(), c.Param("id"), pageSize, (page-1)*pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshots, pagination)
}

// ExportHistory godoc
// @Summary Export a record's version history
// @Tags GradeRecords
// @Produce octet-stream
// @Param id path string true "Record id"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /grade-records/{id}/history/export [get]
func (h *GradeRecordHandler) ExportHistory(c *gin.Context) {
	id := c.Param("id")
	snapshots, _, err := h.lifecycle.GetVersionHistory(c.Request.Context(), id, 1000, 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	dataset := historyDataset(snapshots)

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=grade-history-%s.csv", id))
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.pdf.Render(dataset, "Grade Record History")
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=grade-history-%s.pdf", id))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}

// Transitions godoc
// @Summary List the movement trail of a record
// @Tags GradeRecords
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Router /grade-records/{id}/transitions [get]
func (h *GradeRecordHandler) Transitions(c *gin.Context) {
	events, err := h.lifecycle.GetTransitionLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Statistics godoc
// @Summary Per-state record counts for a scope
// @Tags GradeRecords
// @Produce json
// @Param classId query string false "Filter by class"
// @Param subjectId query string false "Filter by subject"
// @Param termId query string false "Filter by term"
// @Success 200 {object} response.Envelope
// @Router /grade-records/statistics [get]
func (h *GradeRecordHandler) Statistics(c *gin.Context) {
	filter, err := h.scopedFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.lifecycle.GetStatisticsByStatus(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// scopedFilter builds a query filter and enforces the teacher's class scope.
func (h *GradeRecordHandler) scopedFilter(c *gin.Context) (models.GradeRecordFilter, error) {
	filter := models.GradeRecordFilter{
		StudentID: c.Query("studentId"),
		ClassID:   c.Query("classId"),
		SubjectID: c.Query("subjectId"),
		TermID:    c.Query("termId"),
		State:     models.GradeState(c.Query("state")),
	}
	if filter.State != "" && !filter.State.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown state %q", filter.State))
	}
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleTeacher && filter.ClassID != "" && !claims.Scope.Allows(filter.ClassID) {
		return filter, appErrors.Clone(appErrors.ErrForbidden, "class is outside your teaching scope")
	}
	return filter, nil
}

func historyDataset(snapshots []models.VersionSnapshot) export.Dataset {
	headers := []string{"Version", "State", "Continuous Avg", "Exam Score", "Final Avg", "Actor", "Description", "Created At"}
	rows := make([]map[string]string, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, map[string]string{
			"Version":        strconv.FormatInt(s.Version, 10),
			"State":          string(s.State),
			"Continuous Avg": formatScore(s.ContinuousAvg),
			"Exam Score":     formatScore(s.ExamScore),
			"Final Avg":      formatScore(s.CourseFinalAvg),
			"Actor":          s.Actor,
			"Description":    s.Description,
			"Created At":     s.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
