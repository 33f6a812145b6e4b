package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingitemdomain "github.com/opencasehq/casebill/internal/billingitem/domain"
	eligibilitydomain "github.com/opencasehq/casebill/internal/eligibility/domain"
)

// EvaluateWorkItem runs the eligibility gates without side effects. Gate
// failures are part of the contract, not errors: the response reports
// eligible=false with the gate's reason.
func (s *Server) EvaluateWorkItem(c *gin.Context) {
	var req struct {
		WorkItemID string `json:"work_item_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	workItemID, ok := parseSnowflake(req.WorkItemID)
	if !ok {
		AbortWithError(c, newValidationError("work_item_id", "invalid_work_item_id", "invalid work item id"))
		return
	}

	result, err := s.evaluator.Evaluate(c.Request.Context(), workItemID)
	if err != nil {
		if reason := eligibilitydomain.Reason(err); reason != "" {
			s.metrics.EligibilityFailure(reason)
			c.JSON(http.StatusOK, gin.H{"eligible": false, "reason": reason})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"eligible": true, "result": result})
}

// CreateBillingItem evaluates a work item and persists the pending billing
// item in one call. Gate failures reject the request.
func (s *Server) CreateBillingItem(c *gin.Context) {
	var req struct {
		WorkItemID string `json:"work_item_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	workItemID, ok := parseSnowflake(req.WorkItemID)
	if !ok {
		AbortWithError(c, newValidationError("work_item_id", "invalid_work_item_id", "invalid work item id"))
		return
	}

	ctx := c.Request.Context()
	result, err := s.evaluator.Evaluate(ctx, workItemID)
	if err != nil {
		if reason := eligibilitydomain.Reason(err); reason != "" {
			s.metrics.EligibilityFailure(reason)
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": reason})
			return
		}
		AbortWithError(c, err)
		return
	}

	item, err := s.lifecycle.Create(ctx, result)
	if err != nil {
		if errors.Is(err, billingitemdomain.ErrAlreadyFlatBilled) {
			s.metrics.EligibilityFailure("already_flat_billed")
		}
		AbortWithError(c, err)
		return
	}

	s.metrics.ItemTransition(string(item.Status))
	c.JSON(http.StatusCreated, item)
}

// ApproveBillingItem re-checks the budget cap and transitions the item.
func (s *Server) ApproveBillingItem(c *gin.Context) {
	id, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_billing_item_id", "invalid billing item id"))
		return
	}

	item, err := s.lifecycle.Approve(c.Request.Context(), id)
	if err != nil {
		var blocked *billingitemdomain.BudgetBlockedError
		if errors.As(err, &blocked) {
			s.metrics.BudgetBlock(blocked.Cap.BlockedScope)
		}
		AbortWithError(c, err)
		return
	}

	s.metrics.ItemTransition(string(item.Status))
	c.JSON(http.StatusOK, item)
}

// RejectBillingItem marks the item rejected with a required reason.
func (s *Server) RejectBillingItem(c *gin.Context) {
	id, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_billing_item_id", "invalid billing item id"))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.lifecycle.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.metrics.ItemTransition(string(item.Status))
	c.JSON(http.StatusOK, item)
}

// GetBillingItem loads one billing item.
func (s *Server) GetBillingItem(c *gin.Context) {
	id, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_billing_item_id", "invalid billing item id"))
		return
	}

	item, err := s.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func parseSnowflake(raw string) (snowflake.ID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return snowflake.ID(value), true
}
