package order

import "context"

type Repository interface {
	// Insert persists the order with its items and assigns their IDs.
	Insert(ctx context.Context, order *Order) error
	NumberExists(ctx context.Context, number string) (bool, error)
	Get(ctx context.Context, id int64) (*Order, error)
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	// Update writes the mutable header fields: status, payment status, tracking number.
	Update(ctx context.Context, order *Order) error
}
