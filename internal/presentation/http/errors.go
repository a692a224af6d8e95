package httppresentation

import (
	"context"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/storefront/internal/application"
	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	domainInventory "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/observability/logctx"
)

// problem is the error body returned to clients. Optional fields identify the
// offending variant, promo or field.
type problem struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	VariantID int64  `json:"variant_id,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	PromoCode string `json:"promo_code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, p problem) {
	writeJSON(w, status, p)
}

// writeDomainError maps application and domain errors onto HTTP statuses.
// Unexpected errors are logged and reported without internal detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, p := classify(err)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_request_failed",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("status", status),
			observability.Err(err),
		)
	}
	writeProblem(w, status, p)
}

func classify(err error) (int, problem) {
	var (
		validation *application.ValidationError
		stock      *domainInventory.InsufficientStockError
		missing    *domainInventory.VariantNotFoundError
		promo      *pricing.InvalidPromoError
		rejected   *appPayment.ProviderError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, problem{Error: validation.Message, Code: "VALIDATION_FAILED", Field: validation.Field}
	case errors.Is(err, domainOrder.ErrEmptyCart):
		return http.StatusBadRequest, problem{Error: "cart is empty", Code: "EMPTY_CART"}
	case errors.As(err, &stock):
		requested, available := stock.Requested, stock.Available
		return http.StatusBadRequest, problem{
			Error:     "insufficient stock",
			Code:      "INSUFFICIENT_STOCK",
			VariantID: stock.VariantID,
			Requested: &requested,
			Available: &available,
		}
	case errors.As(err, &missing):
		return http.StatusNotFound, problem{Error: "variant not found", Code: "VARIANT_NOT_FOUND", VariantID: missing.VariantID}
	case errors.As(err, &promo):
		return http.StatusBadRequest, problem{Error: "invalid promo code", Code: "INVALID_PROMO", PromoCode: promo.Code, Reason: promo.Reason}
	case errors.Is(err, domainOrder.ErrAlreadyPaid):
		return http.StatusBadRequest, problem{Error: "order is already paid", Code: "ALREADY_PAID"}
	case errors.Is(err, appPayment.ErrCaptureIncomplete):
		return http.StatusBadRequest, problem{Error: "payment was not completed", Code: "CAPTURE_INCOMPLETE"}
	case errors.Is(err, domainOrder.ErrInvalidStateTransition):
		return http.StatusBadRequest, problem{Error: err.Error(), Code: "INVALID_TRANSITION"}
	case errors.Is(err, domainPayment.ErrInvalidAmount),
		errors.Is(err, domainOrder.ErrInvalidAmount):
		return http.StatusBadRequest, problem{Error: "amount must be greater than zero", Code: "INVALID_AMOUNT"}
	case errors.Is(err, domainOrder.ErrInvalidQuantity),
		errors.Is(err, domainInventory.ErrInvalidQuantity):
		return http.StatusBadRequest, problem{Error: "quantity must be greater than zero", Code: "INVALID_QUANTITY"}
	case errors.As(err, &rejected):
		return http.StatusBadRequest, problem{Error: rejected.Message, Code: "PROVIDER_REJECTED", Provider: string(rejected.Provider)}
	case errors.Is(err, appPayment.ErrProviderUnavailable):
		return http.StatusBadGateway, problem{Error: "payment provider unavailable", Code: "PROVIDER_UNAVAILABLE"}
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden, problem{Error: "forbidden", Code: "FORBIDDEN"}
	case errors.Is(err, domainOrder.ErrNotFound):
		return http.StatusNotFound, problem{Error: "order not found", Code: "ORDER_NOT_FOUND"}
	case errors.Is(err, domainPayment.ErrNotFound):
		return http.StatusNotFound, problem{Error: "payment not found", Code: "PAYMENT_NOT_FOUND"}
	case errors.Is(err, domainInventory.ErrNotFound):
		return http.StatusNotFound, problem{Error: "variant not found", Code: "VARIANT_NOT_FOUND"}
	case errors.Is(err, appOrder.ErrNumberExhausted):
		return http.StatusServiceUnavailable, problem{Error: "could not allocate an order number", Code: "ORDER_NUMBER_EXHAUSTED"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, problem{Error: "request timed out", Code: "TIMEOUT"}
	default:
		return http.StatusInternalServerError, problem{Error: "internal error", Code: "INTERNAL"}
	}
}
