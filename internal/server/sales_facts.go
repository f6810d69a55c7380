package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type rebuildSalesFactsRequest struct {
	ProcessDate string `json:"process_date"`
}

func (s *Server) EnqueueSalesFactRebuild(c *gin.Context) {
	if s.salesFactSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req rebuildSalesFactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ProcessDate) == "" {
		AbortWithError(c, newValidationError("process_date", "required", "process_date is required"))
		return
	}
	processDate, err := parseOptionalDate(req.ProcessDate)
	if err != nil {
		AbortWithError(c, newValidationError("process_date", "invalid_process_date", "process_date must be YYYY-MM-DD"))
		return
	}

	id, err := s.salesFactSvc.EnqueueRebuild(c.Request.Context(), processDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":           id,
		"process_date": processDate.String(),
		"status":       "pending",
	})
}

func (s *Server) GetSalesFactRebuild(c *gin.Context) {
	if s.salesFactSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	req, err := s.salesFactSvc.GetRebuildRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
