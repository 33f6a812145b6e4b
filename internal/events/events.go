package events

// Billing event types emitted through the outbox.
const (
	EventBillingItemCreated  = "billing_item.created"
	EventBillingItemApproved = "billing_item.approved"
	EventBillingItemRejected = "billing_item.rejected"
	EventInvoiceGenerated    = "invoice.generated"
	EventInvoiceVoided       = "invoice.voided"
)

// BillingItemPayload captures the minimal data consumers need to react to a
// billing item transition.
type BillingItemPayload struct {
	BillingItemID     string `json:"billing_item_id"`
	CaseID            string `json:"case_id"`
	ServiceInstanceID string `json:"service_instance_id,omitempty"`
	Status            string `json:"status"`
	AmountCents       int64  `json:"amount_cents"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p BillingItemPayload) ToMap() map[string]any {
	payload := map[string]any{
		"billing_item_id": p.BillingItemID,
		"case_id":         p.CaseID,
		"status":          p.Status,
		"amount_cents":    p.AmountCents,
	}
	if p.ServiceInstanceID != "" {
		payload["service_instance_id"] = p.ServiceInstanceID
	}
	return payload
}

// InvoicePayload captures the minimal data needed to react to invoice events.
type InvoicePayload struct {
	InvoiceID string `json:"invoice_id"`
	CaseID    string `json:"case_id,omitempty"`
	LineCount int    `json:"line_count,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p InvoicePayload) ToMap() map[string]any {
	payload := map[string]any{
		"invoice_id": p.InvoiceID,
	}
	if p.CaseID != "" {
		payload["case_id"] = p.CaseID
	}
	if p.LineCount > 0 {
		payload["line_count"] = p.LineCount
	}
	return payload
}
