package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goedu/assessment-engine/internal/middleware"
	"github.com/goedu/assessment-engine/internal/repository"
	"github.com/goedu/assessment-engine/internal/response"
)

// ResultHandler serves persisted results and progress stats.
type ResultHandler struct {
	results *repository.ResultRepository
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(results *repository.ResultRepository) *ResultHandler {
	return &ResultHandler{results: results}
}

// History godoc
// GET /api/v1/results?page=&per_page=
// Returns the user's result history, newest first.
func (h *ResultHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	results, total, err := h.results.ListByUser(c.Request.Context(), claims.UserID, perPage, (page-1)*perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// Progress godoc
// GET /api/v1/results/progress
// Returns aggregate progress for the authenticated user. Computed in SQL,
// never by parsing score strings.
func (h *ResultHandler) Progress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	progress, err := h.results.ProgressByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"progress": progress})
}
