package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/opencasehq/casebill/internal/audit/domain"
	ratedomain "github.com/opencasehq/casebill/internal/rate/domain"
	"go.uber.org/zap"
)

type createRateOverrideRequest struct {
	CatalogServiceID string  `json:"catalog_service_id"`
	Scope            string  `json:"scope"`
	AccountID        string  `json:"account_id"`
	RateCents        int64   `json:"rate_cents"`
	EffectiveDate    *string `json:"effective_date"`
	EndDate          *string `json:"end_date"`
}

// CreateRateOverride records a scoped rate for a catalog service. The
// resolver reads these; creation is administrative.
func (s *Server) CreateRateOverride(c *gin.Context) {
	var req createRateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	serviceID, ok := parseSnowflake(req.CatalogServiceID)
	if !ok {
		AbortWithError(c, newValidationError("catalog_service_id", "invalid_catalog_service_id", "invalid catalog service id"))
		return
	}
	scope := ratedomain.OverrideScope(req.Scope)
	if scope != ratedomain.OverrideScopeAccount && scope != ratedomain.OverrideScopeEmployee {
		AbortWithError(c, newValidationError("scope", "invalid_scope", "scope must be account or employee"))
		return
	}
	if req.RateCents <= 0 {
		AbortWithError(c, newValidationError("rate_cents", "invalid_rate", "rate must be positive"))
		return
	}

	override := ratedomain.RateOverride{
		ID:               s.genID.Generate(),
		CatalogServiceID: serviceID,
		Scope:            scope,
		RateCents:        req.RateCents,
	}
	if req.AccountID != "" {
		accountID, ok := parseSnowflake(req.AccountID)
		if !ok {
			AbortWithError(c, newValidationError("account_id", "invalid_account_id", "invalid account id"))
			return
		}
		override.AccountID = &accountID
	}
	if scope == ratedomain.OverrideScopeAccount && override.AccountID == nil {
		AbortWithError(c, newValidationError("account_id", "required", "account scope requires an account id"))
		return
	}

	effective, ok := parseOptionalDate(req.EffectiveDate)
	if !ok {
		AbortWithError(c, newValidationError("effective_date", "invalid_date", "dates use YYYY-MM-DD"))
		return
	}
	override.EffectiveDate = effective
	end, ok := parseOptionalDate(req.EndDate)
	if !ok {
		AbortWithError(c, newValidationError("end_date", "invalid_date", "dates use YYYY-MM-DD"))
		return
	}
	override.EndDate = end

	now := time.Now().UTC()
	override.CreatedAt = now
	override.UpdatedAt = now

	ctx := c.Request.Context()
	if err := s.db.WithContext(ctx).Create(&override).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := override.ID.String()
	if err := s.audit.AuditLog(ctx, nil, auditdomain.ActionRateOverrideCreated, "rate_override", &targetID, map[string]any{
		"catalog_service_id": override.CatalogServiceID.String(),
		"scope":              string(override.Scope),
		"rate_cents":         override.RateCents,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", auditdomain.ActionRateOverrideCreated), zap.Error(err))
	}

	c.JSON(http.StatusCreated, override)
}

// ListRateOverrides returns the overrides for a catalog service.
func (s *Server) ListRateOverrides(c *gin.Context) {
	serviceID, ok := parseSnowflake(c.Query("catalog_service_id"))
	if !ok {
		AbortWithError(c, newValidationError("catalog_service_id", "invalid_catalog_service_id", "invalid catalog service id"))
		return
	}

	var overrides []ratedomain.RateOverride
	if err := s.db.WithContext(c.Request.Context()).Raw(
		`SELECT id, org_id, catalog_service_id, scope, account_id, rate_cents, effective_date, end_date, created_at, updated_at
		 FROM rate_overrides
		 WHERE catalog_service_id = ?
		 ORDER BY (effective_date IS NULL) ASC, effective_date DESC, id DESC`,
		serviceID,
	).Scan(&overrides).Error; err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

// DeleteRateOverride removes an override.
func (s *Server) DeleteRateOverride(c *gin.Context) {
	id, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_rate_override_id", "invalid rate override id"))
		return
	}

	result := s.db.WithContext(c.Request.Context()).Exec(`DELETE FROM rate_overrides WHERE id = ?`, id)
	if result.Error != nil {
		AbortWithError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseOptionalDate(raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	parsed, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}
