package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup deletes every organization whose name carries the given
// prefix, along with its billing data. Registered only when test endpoints
// are enabled, and refused outright in production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.IsProduction() {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	orgIDs, err := s.loadOrgIDsByPrefix(ctx, prefix)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.deleteOrgData(ctx, orgIDs); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "organizations_deleted": len(orgIDs)})
}

func (s *Server) loadOrgIDsByPrefix(ctx context.Context, prefix string) ([]int64, error) {
	like := strings.TrimSpace(prefix) + "%"
	var orgIDs []int64
	if err := s.db.WithContext(ctx).
		Table("organizations").
		Select("id").
		Where("name LIKE ?", like).
		Scan(&orgIDs).Error; err != nil {
		return nil, err
	}
	return orgIDs, nil
}

func (s *Server) deleteOrgData(ctx context.Context, orgIDs []int64) error {
	if len(orgIDs) == 0 {
		return nil
	}
	queries := []string{
		`DELETE FROM invoice_line_items WHERE invoice_id IN (SELECT id FROM invoices WHERE org_id IN ?)`,
		`DELETE FROM invoices WHERE org_id IN ?`,
		`DELETE FROM billing_items WHERE org_id IN ?`,
		`DELETE FROM billing_events WHERE org_id IN ?`,
		`DELETE FROM budget_configs WHERE org_id IN ?`,
		`DELETE FROM rate_overrides WHERE org_id IN ?`,
		`DELETE FROM work_items WHERE org_id IN ?`,
		`DELETE FROM service_instances WHERE org_id IN ?`,
		`DELETE FROM catalog_services WHERE org_id IN ?`,
		`DELETE FROM audit_logs WHERE org_id IN ?`,
		`DELETE FROM organizations WHERE id IN ?`,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, query := range queries {
			if err := tx.Exec(query, orgIDs).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
