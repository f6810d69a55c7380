package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	dashboarddomain "github.com/smallbiznis/fluxdrive/internal/dashboard/domain"
)

// GetDashboard returns every metric computed against one resolved scope.
func (s *Server) GetDashboard(c *gin.Context) {
	asOf, err := parseOptionalDate(c.Query("as_of"))
	if err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "as_of must be YYYY-MM-DD"))
		return
	}

	resp, err := s.dashboardSvc.Dashboard(c.Request.Context(), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) resolveScope(c *gin.Context) (dashboarddomain.Scope, bool) {
	asOf, err := parseOptionalDate(c.Query("as_of"))
	if err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "as_of must be YYYY-MM-DD"))
		return dashboarddomain.Scope{}, false
	}
	scope, err := s.dashboardSvc.Resolve(c.Request.Context(), asOf)
	if err != nil {
		AbortWithError(c, err)
		return dashboarddomain.Scope{}, false
	}
	return scope, true
}

func (s *Server) GetKPIs(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.KPIs(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetDailySalesTrend(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.DailySalesTrend(c.Request.Context(), scope.WindowStart, scope.Today)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetInventoryByPriceRange(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.InventoryByPriceRange(c.Request.Context(), scope.InventoryKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetSalesByBrand(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.SalesByBrand(c.Request.Context(), scope.WindowStart, scope.Today)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetDaysOnLotByPriceRange(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.DaysOnLotByPriceRange(c.Request.Context(), scope.InventoryKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetTopSellingModels(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.TopSellingModels(c.Request.Context(), scope.WindowStart, scope.Today)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetSlowMovingInventory(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.SlowMovingInventory(c.Request.Context(), scope.InventoryKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetRecentSales(c *gin.Context) {
	scope, ok := s.resolveScope(c)
	if !ok {
		return
	}
	resp, err := s.dashboardSvc.RecentSales(c.Request.Context(), scope.Today)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetDiagnostics reports data freshness for operators.
func (s *Server) GetDiagnostics(c *gin.Context) {
	resp, err := s.dashboardSvc.Diagnostics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
