package inventory

import "time"

// LowStockEvent is emitted when a placed order leaves a variant below the restock threshold.
type LowStockEvent struct {
	VariantID  int64     `json:"variant_id"`
	Stock      int       `json:"stock"`
	Threshold  int       `json:"threshold"`
	OrderID    int64     `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (LowStockEvent) EventName() string { return "inventory.low_stock" }

func NewLowStockEvent(variantID int64, stock, threshold int, orderID int64) LowStockEvent {
	return LowStockEvent{
		VariantID:  variantID,
		Stock:      stock,
		Threshold:  threshold,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
	}
}
