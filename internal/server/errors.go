package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingitemdomain "github.com/opencasehq/casebill/internal/billingitem/domain"
	budgetdomain "github.com/opencasehq/casebill/internal/budget/domain"
	eligibilitydomain "github.com/opencasehq/casebill/internal/eligibility/domain"
	invoicedomain "github.com/opencasehq/casebill/internal/invoice/domain"
	"github.com/opencasehq/casebill/internal/observability/logger"
	ratedomain "github.com/opencasehq/casebill/internal/rate/domain"
	"go.uber.org/zap"
)

// APIError is a handler-level error with an HTTP status.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string { return e.Code }

var ErrNotFound = &APIError{Status: http.StatusNotFound, Code: "not_found"}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

// statusByError maps domain sentinels onto HTTP statuses. Anything absent is
// an internal error.
var statusByError = map[error]int{
	eligibilitydomain.ErrInvalidWorkItem:  http.StatusBadRequest,
	eligibilitydomain.ErrWorkItemNotFound: http.StatusNotFound,

	billingitemdomain.ErrInvalidBillingItem: http.StatusBadRequest,
	billingitemdomain.ErrItemNotFound:       http.StatusNotFound,
	billingitemdomain.ErrAlreadyResolved:    http.StatusConflict,
	billingitemdomain.ErrAlreadyFlatBilled:  http.StatusConflict,
	billingitemdomain.ErrMissingReason:      http.StatusBadRequest,

	budgetdomain.ErrInvalidCase:          http.StatusBadRequest,
	budgetdomain.ErrInvalidAuthorization: http.StatusBadRequest,

	invoicedomain.ErrInvalidInvoice:  http.StatusBadRequest,
	invoicedomain.ErrInvoiceNotFound: http.StatusNotFound,
	invoicedomain.ErrInvoiceVoided:   http.StatusConflict,
	invoicedomain.ErrAlreadyVoided:   http.StatusConflict,
	invoicedomain.ErrNoLineItems:     http.StatusUnprocessableEntity,
	invoicedomain.ErrMissingReason:   http.StatusBadRequest,

	ratedomain.ErrInvalidService:   http.StatusBadRequest,
	ratedomain.ErrInvalidAccount:   http.StatusBadRequest,
	ratedomain.ErrServiceNotFound:  http.StatusNotFound,
	ratedomain.ErrNoRateConfigured: http.StatusUnprocessableEntity,
}

// AbortWithError renders a domain or API error as structured JSON. A
// budget-blocked failure carries the cap details so the caller can render a
// distinct affordance.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, apiErr)
		return
	}

	var blocked *billingitemdomain.BudgetBlockedError
	if errors.As(err, &blocked) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":          "budget_blocked",
			"budget_blocked": true,
			"cap":            blocked.Cap,
		})
		return
	}

	for sentinel, status := range statusByError {
		if errors.Is(err, sentinel) {
			c.AbortWithStatusJSON(status, gin.H{"error": sentinel.Error()})
			return
		}
	}

	logger.FromContext(c.Request.Context()).Error("unhandled error", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
