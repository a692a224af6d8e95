package httppresentation

import (
	"net/http"
	"time"

	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	domainOrder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/shopspring/decimal"
)

type lineRequest struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

// placeOrderRequest carries the cart. Client-side prices are not part of the
// contract; unit prices always come from the stored variants.
type placeOrderRequest struct {
	Items           []lineRequest `json:"items"`
	ShippingAddress string        `json:"shipping_address"`
	BillingAddress  string        `json:"billing_address"`
	PaymentMethod   string        `json:"payment_method"`
	PromoCode       string        `json:"promo_code"`
}

type itemResponse struct {
	ID        int64  `json:"id"`
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	LineTotal string `json:"line_total"`
}

type orderResponse struct {
	ID              int64          `json:"id"`
	OrderNumber     string         `json:"order_number"`
	UserID          int64          `json:"user_id"`
	Status          string         `json:"status"`
	Subtotal        string         `json:"subtotal"`
	DiscountAmount  string         `json:"discount_amount"`
	TotalPrice      string         `json:"total_price"`
	PaymentStatus   bool           `json:"payment_status"`
	PromoCodeID     *int64         `json:"promo_code_id,omitempty"`
	ShippingAddress string         `json:"shipping_address"`
	BillingAddress  string         `json:"billing_address"`
	PaymentMethod   string         `json:"payment_method"`
	TrackingNumber  string         `json:"tracking_number,omitempty"`
	Items           []itemResponse `json:"items"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func newOrderResponse(o *domainOrder.Order) orderResponse {
	items := make([]itemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemResponse{
			ID:        it.ID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Price:     money(it.Price),
			LineTotal: money(it.LineTotal()),
		}
	}
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Subtotal:        money(o.Subtotal),
		DiscountAmount:  money(o.DiscountAmount),
		TotalPrice:      money(o.TotalPrice),
		PaymentStatus:   o.PaymentStatus,
		PromoCodeID:     o.PromoCodeID,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	lines := make([]appOrder.LineInput, len(req.Items))
	for i, it := range req.Items {
		lines[i] = appOrder.LineInput{VariantID: it.VariantID, Quantity: it.Quantity}
	}
	result, err := h.orders.PlaceOrder(r.Context(), appOrder.PlaceOrderInput{
		UserID:          actor.UserID,
		Items:           lines,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		PromoCode:       req.PromoCode,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(result.Order))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.List(r.Context(), appOrder.ListOrdersInput{Actor: actor})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = newOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), appOrder.GetOrderInput{Actor: actor, OrderID: id})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type updateStatusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
}

type updateStatusResponse struct {
	Order   orderResponse `json:"order"`
	Changed bool          `json:"changed"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.orders.UpdateStatus(r.Context(), appOrder.UpdateStatusInput{
		Actor:          actor,
		OrderID:        id,
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateStatusResponse{Order: newOrderResponse(res.Order), Changed: res.Changed})
}

type validatePromoRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cart_total"`
}

type validatePromoResponse struct {
	Valid          bool   `json:"valid"`
	Code           string `json:"code"`
	DiscountType   string `json:"discount_type"`
	Value          string `json:"value"`
	DiscountAmount string `json:"discount_amount"`
	Total          string `json:"total"`
}

// handleValidatePromo quotes a code against a cart total. Anonymous callers
// are allowed so the cart page can preview discounts.
func (h *Handler) handleValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.orders.ValidatePromo(r.Context(), appOrder.ValidatePromoInput{
		Code:      req.Code,
		CartTotal: req.CartTotal,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validatePromoResponse{
		Valid:          true,
		Code:           res.Code,
		DiscountType:   string(res.DiscountType),
		Value:          res.Value.String(),
		DiscountAmount: money(res.DiscountAmount),
		Total:          money(res.Total),
	})
}
