package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/opencasehq/casebill/internal/audit/domain"
	budgetdomain "github.com/opencasehq/casebill/internal/budget/domain"
	"go.uber.org/zap"
)

// GetCaseForecast reports actual + pending consumption for a case.
func (s *Server) GetCaseForecast(c *gin.Context) {
	caseID, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_case_id", "invalid case id"))
		return
	}

	forecast, err := s.ledger.Forecast(c.Request.Context(), caseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, forecast)
}

// PutCaseBudget creates or updates the case budget, optionally narrowed to a
// service instance.
func (s *Server) PutCaseBudget(c *gin.Context) {
	caseID, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_case_id", "invalid case id"))
		return
	}

	var req struct {
		ServiceInstanceID     string   `json:"service_instance_id"`
		AuthorizedHours       *float64 `json:"authorized_hours"`
		AuthorizedAmountCents *int64   `json:"authorized_amount_cents"`
		HardCap               bool     `json:"hard_cap"`
		WarningThresholdPct   *float64 `json:"warning_threshold_pct"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	budget := budgetdomain.BudgetConfig{
		CaseID:                caseID,
		AuthorizedHours:       req.AuthorizedHours,
		AuthorizedAmountCents: req.AuthorizedAmountCents,
		HardCap:               req.HardCap,
		WarningThresholdPct:   req.WarningThresholdPct,
	}
	if req.ServiceInstanceID != "" {
		serviceInstanceID, ok := parseSnowflake(req.ServiceInstanceID)
		if !ok {
			AbortWithError(c, newValidationError("service_instance_id", "invalid_service_instance_id", "invalid service instance id"))
			return
		}
		budget.ServiceInstanceID = &serviceInstanceID
	}

	ctx := c.Request.Context()
	saved, err := s.ledger.UpsertConfig(ctx, budget)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := saved.CaseID.String()
	if err := s.audit.AuditLog(ctx, nil, auditdomain.ActionBudgetConfigured, "budget_config", &targetID, map[string]any{
		"case_id":                 saved.CaseID.String(),
		"hard_cap":                saved.HardCap,
		"authorized_hours":        saved.AuthorizedHours,
		"authorized_amount_cents": saved.AuthorizedAmountCents,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", auditdomain.ActionBudgetConfigured), zap.Error(err))
	}

	c.JSON(http.StatusOK, saved)
}
