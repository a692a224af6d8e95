package httppresentation

import (
	"net/http"
	"strings"

	"github.com/Zhima-Mochi/storefront/internal/application"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/observability/logctx"
)

type orderRefRequest struct {
	OrderID int64 `json:"order_id"`
}

type initiateResponse struct {
	RedirectURL string `json:"redirect_url"`
	PollURL     string `json:"poll_url"`
	Reference   string `json:"reference"`
}

func (h *Handler) handleInitiatePaynow(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req orderRefRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.payments.InitiatePaynow(r.Context(), appPayment.InitiatePaynowInput{Actor: actor, OrderID: req.OrderID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, initiateResponse{
		RedirectURL: res.RedirectURL,
		PollURL:     res.PollURL,
		Reference:   res.Reference,
	})
}

type webhookResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// handlePaynowUpdate receives Paynow's server-to-server status post. A hash
// mismatch fails the payment and is still acknowledged with 200.
func (h *Handler) handlePaynowUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.writeDomainError(w, r, application.NewValidation("", "unreadable body"))
		return
	}
	fields, err := h.parseForm(body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, problem{Error: "malformed status update", Code: "MALFORMED_FORM"})
		return
	}
	res, err := h.payments.PaynowWebhook(r.Context(), appPayment.PaynowWebhookInput{Fields: fields})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if !res.Authentic {
		logctx.FromOr(r.Context(), h.log).Warn("paynow_hash_mismatch", observability.F("reference", res.Reference))
	}
	writeJSON(w, http.StatusOK, webhookResponse{Reference: res.Reference, Status: string(res.Status)})
}

// handlePayPalCreate relays PayPal's order body so the client SDK can use it
// directly.
func (h *Handler) handlePayPalCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req orderRefRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.payments.PayPalCreate(r.Context(), appPayment.PayPalCreateInput{Actor: actor, OrderID: req.OrderID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if len(res.Order.Raw) == 0 {
		writeJSON(w, http.StatusCreated, map[string]string{"id": res.Order.ID, "status": res.Order.Status})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(res.Order.Raw)
}

type captureRequest struct {
	PayPalOrderID string `json:"paypal_order_id"`
	UserOrderID   int64  `json:"user_order_id"`
}

type captureResponse struct {
	OrderID   int64  `json:"order_id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

func (h *Handler) handlePayPalCapture(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.payments.PayPalCapture(r.Context(), appPayment.PayPalCaptureInput{
		Actor:         actor,
		PayPalOrderID: req.PayPalOrderID,
		OrderID:       req.UserOrderID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, captureResponse{
		OrderID:   res.OrderID,
		Reference: res.Reference,
		Status:    string(res.Status),
	})
}

type statusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	Amount    string `json:"amount"`
}

func (h *Handler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.PathValue("reference"))
	p, err := h.payments.Status(r.Context(), appPayment.StatusInput{Reference: ref})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Reference: p.Reference,
		Status:    string(p.Status),
		Provider:  string(p.Provider),
		Amount:    money(p.Amount),
	})
}
