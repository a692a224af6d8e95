package payment

import "time"

// ReconciledEvent is emitted whenever a provider event moves a payment into a terminal status.
type ReconciledEvent struct {
	PaymentID  string    `json:"payment_id"`
	Reference  string    `json:"reference"`
	OrderID    int64     `json:"order_id"`
	Provider   Provider  `json:"provider"`
	Status     Status    `json:"status"`
	Forged     bool      `json:"forged"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (ReconciledEvent) EventName() string { return "payment.reconciled" }

func NewReconciledEvent(p *Payment, forged bool) ReconciledEvent {
	return ReconciledEvent{
		PaymentID:  p.ID,
		Reference:  p.Reference,
		OrderID:    p.OrderID,
		Provider:   p.Provider,
		Status:     p.Status,
		Forged:     forged,
		OccurredAt: time.Now().UTC(),
	}
}
