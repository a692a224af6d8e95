package order

import "time"

// PlacedItem carries the reserved line and the stock left on the variant after reservation.
type PlacedItem struct {
	VariantID      int64  `json:"variant_id"`
	Quantity       int    `json:"quantity"`
	Price          string `json:"price"`
	RemainingStock int    `json:"remaining_stock"`
}

// OrderPlacedEvent is written to the outbox in the same transaction that creates the order.
type OrderPlacedEvent struct {
	OrderID     int64        `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	UserID      int64        `json:"user_id"`
	Total       string       `json:"total"`
	Discount    string       `json:"discount"`
	Items       []PlacedItem `json:"items"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func NewOrderPlacedEvent(o *Order, remaining map[int64]int) OrderPlacedEvent {
	items := make([]PlacedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, PlacedItem{
			VariantID:      it.VariantID,
			Quantity:       it.Quantity,
			Price:          it.Price.StringFixed(2),
			RemainingStock: remaining[it.VariantID],
		})
	}
	return OrderPlacedEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		Total:       o.TotalPrice.StringFixed(2),
		Discount:    o.DiscountAmount.StringFixed(2),
		Items:       items,
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderStatusChangedEvent is emitted by fulfillment and payment cascades.
type OrderStatusChangedEvent struct {
	OrderID       int64     `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	PaymentStatus bool      `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (OrderStatusChangedEvent) EventName() string { return "order.status_changed" }

func NewOrderStatusChangedEvent(o *Order, from Status) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		From:          from,
		To:            o.Status,
		PaymentStatus: o.PaymentStatus,
		OccurredAt:    time.Now().UTC(),
	}
}
