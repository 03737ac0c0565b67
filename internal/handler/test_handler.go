package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goedu/assessment-engine/internal/catalog"
	"github.com/goedu/assessment-engine/internal/engine"
	"github.com/goedu/assessment-engine/internal/response"
)

// TestHandler handles test catalog endpoints.
type TestHandler struct {
	catalog *catalog.Service
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(catalog *catalog.Service) *TestHandler {
	return &TestHandler{catalog: catalog}
}

// List godoc
// GET /api/v1/tests?page=&per_page=
// Returns a paginated list of active tests.
func (h *TestHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	tests, total, err := h.catalog.ListTests(c.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tests": tests}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// Get godoc
// GET /api/v1/tests/:test_id
// Returns the test payload (questions and answer options, correctness stripped).
// Served from Redis when warm, falling back to PostgreSQL.
func (h *TestHandler) Get(c *gin.Context) {
	testID, err := strconv.ParseInt(c.Param("test_id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	payload, err := h.catalog.GetTestPayload(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, engine.ErrTestNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": payload})
}
