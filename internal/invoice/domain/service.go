package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Generator materializes invoices strictly from approved billing items.
type Generator interface {
	// Generate builds an invoice from the given billing items. Each id is
	// handled independently: unapproved items and items already on a
	// non-voided invoice are skipped, not failed, and reported back in
	// the result. If no id survives, nothing is persisted and
	// ErrNoLineItems is returned alongside the skip lists.
	Generate(ctx context.Context, invoiceID snowflake.ID, billingItemIDs []snowflake.ID) (GenerationResult, error)

	// Void reverses an invoice: line-item billing items return to
	// approved, their service instances unlock, and the reason is
	// recorded. The billing items stay billable for a future invoice.
	Void(ctx context.Context, invoiceID snowflake.ID, reason string) (Invoice, error)

	// Get loads one invoice with its line items.
	Get(ctx context.Context, invoiceID snowflake.ID) (Invoice, error)
}

// Service is the package alias for Generator.
type Service = Generator

var (
	ErrInvalidInvoice  = errors.New("invalid_invoice")
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrInvoiceVoided   = errors.New("invoice_voided")
	ErrAlreadyVoided   = errors.New("already_voided")
	ErrNoLineItems     = errors.New("no_line_items")
	ErrMissingReason   = errors.New("missing_reason")
)
