package server

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/opencasehq/casebill/internal/invoice/domain"
)

type generateInvoiceRequest struct {
	BillingItemIDs []string `json:"billing_item_ids"`
}

// GenerateInvoice materializes an invoice from approved billing items,
// assigning a fresh invoice id.
func (s *Server) GenerateInvoice(c *gin.Context) {
	s.generateInvoice(c, 0)
}

// GenerateInvoiceWithID materializes an invoice under a caller-supplied id,
// for clients that reserve ids up front.
func (s *Server) GenerateInvoiceWithID(c *gin.Context) {
	invoiceID, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_invoice_id", "invalid invoice id"))
		return
	}
	s.generateInvoice(c, invoiceID)
}

func (s *Server) generateInvoice(c *gin.Context, invoiceID snowflake.ID) {
	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.BillingItemIDs) == 0 {
		AbortWithError(c, newValidationError("billing_item_ids", "required", "billing item ids are required"))
		return
	}

	itemIDs := make([]snowflake.ID, 0, len(req.BillingItemIDs))
	for _, raw := range req.BillingItemIDs {
		id, ok := parseSnowflake(raw)
		if !ok {
			AbortWithError(c, newValidationError("billing_item_ids", "invalid_billing_item_id", "invalid billing item id"))
			return
		}
		itemIDs = append(itemIDs, id)
	}

	result, err := s.generator.Generate(c.Request.Context(), invoiceID, itemIDs)
	if err != nil {
		s.metrics.InvoiceOperation("generate", "failed")
		if errors.Is(err, invoicedomain.ErrNoLineItems) {
			// Nothing was invoiceable; return the skip lists so the
			// caller can see why each id was refused.
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error":                    "no_line_items",
				"skipped_not_approved":     result.SkippedNotApproved,
				"skipped_already_invoiced": result.SkippedAlreadyInvoiced,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	s.metrics.InvoiceOperation("generate", "ok")
	s.metrics.InvoiceLines(result.LineItemsCreated)
	c.JSON(http.StatusCreated, result)
}

// VoidInvoice reverses an invoice, releasing its items and instances.
func (s *Server) VoidInvoice(c *gin.Context) {
	invoiceID, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_invoice_id", "invalid invoice id"))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.generator.Void(c.Request.Context(), invoiceID, req.Reason)
	if err != nil {
		s.metrics.InvoiceOperation("void", "failed")
		AbortWithError(c, err)
		return
	}

	s.metrics.InvoiceOperation("void", "ok")
	c.JSON(http.StatusOK, invoice)
}

// GetInvoice loads one invoice with its line items.
func (s *Server) GetInvoice(c *gin.Context) {
	invoiceID, ok := parseSnowflake(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_invoice_id", "invalid invoice id"))
		return
	}

	invoice, err := s.generator.Get(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}
