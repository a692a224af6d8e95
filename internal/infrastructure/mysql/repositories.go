package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"

	"github.com/jmoiron/sqlx"
)

type variantRepo struct{ tx *sqlx.Tx }

var getVariantForUpdateQuery = "SELECT id, product_name, sku, price, discount_price, stock, updated_at FROM product_variants WHERE id = ? FOR UPDATE"

func (r variantRepo) GetForUpdate(ctx context.Context, id int64) (*dominv.Variant, error) {
	var row variantRow
	err := r.tx.GetContext(ctx, &row, getVariantForUpdateQuery, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &dominv.VariantNotFoundError{VariantID: id}
		}
		return nil, fmt.Errorf("mysql: lock variant %d: %w", id, err)
	}
	return row.domain(), nil
}

var updateStockQuery = "UPDATE product_variants SET stock = ?, updated_at = ? WHERE id = ?"

func (r variantRepo) UpdateStock(ctx context.Context, id int64, stock int) error {
	if _, err := r.tx.ExecContext(ctx, updateStockQuery, stock, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mysql: update stock %d: %w", id, err)
	}
	return nil
}

type promoRepo struct{ tx *sqlx.Tx }

var (
	getPromoQuery          = "SELECT id, code, discount_type, value, active, valid_from, valid_to, usage_limit, used_count, min_purchase_amount FROM promo_codes WHERE code = ?"
	getPromoForUpdateQuery = getPromoQuery + " FOR UPDATE"
)

func (r promoRepo) GetByCode(ctx context.Context, code string) (*pricing.PromoCode, error) {
	return r.get(ctx, getPromoQuery, code)
}

func (r promoRepo) GetByCodeForUpdate(ctx context.Context, code string) (*pricing.PromoCode, error) {
	return r.get(ctx, getPromoForUpdateQuery, code)
}

func (r promoRepo) get(ctx context.Context, query, code string) (*pricing.PromoCode, error) {
	var row promoRow
	if err := r.tx.GetContext(ctx, &row, query, pricing.NormalizeCode(code)); err != nil {
		return nil, notFound(err, pricing.ErrNotFound)
	}
	return row.domain(), nil
}

var updatePromoUsageQuery = "UPDATE promo_codes SET used_count = ? WHERE id = ?"

func (r promoRepo) UpdateUsage(ctx context.Context, id int64, usedCount int) error {
	if _, err := r.tx.ExecContext(ctx, updatePromoUsageQuery, usedCount, id); err != nil {
		return fmt.Errorf("mysql: update promo usage %d: %w", id, err)
	}
	return nil
}

type orderRepo struct{ tx *sqlx.Tx }

const orderColumns = "id, order_number, user_id, status, subtotal, discount_amount, total_price, payment_status, promo_code_id, shipping_address, billing_address, payment_method, tracking_number, created_at, updated_at"

var (
	createOrderQuery = "INSERT INTO orders (order_number, user_id, status, subtotal, discount_amount, total_price, payment_status, promo_code_id, shipping_address, billing_address, payment_method, tracking_number, created_at, updated_at) " +
		"VALUES (:order_number, :user_id, :status, :subtotal, :discount_amount, :total_price, :payment_status, :promo_code_id, :shipping_address, :billing_address, :payment_method, :tracking_number, :created_at, :updated_at)"
	createItemQuery        = "INSERT INTO order_items (order_id, variant_id, quantity, price) VALUES (?, ?, ?, ?)"
	orderNumberExistsQuery = "SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = ?)"
	getOrderQuery          = "SELECT " + orderColumns + " FROM orders WHERE id = ?"
	getOrderForUpdateQuery = getOrderQuery + " FOR UPDATE"
	listOrdersByUserQuery  = "SELECT " + orderColumns + " FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC"
	getItemsQuery          = "SELECT id, order_id, variant_id, quantity, price FROM order_items WHERE order_id IN (?) ORDER BY id"
	updateOrderQuery       = "UPDATE orders SET status = ?, payment_status = ?, tracking_number = ?, updated_at = ? WHERE id = ?"
)

func (r orderRepo) Insert(ctx context.Context, o *domorder.Order) error {
	res, err := r.tx.NamedExecContext(ctx, createOrderQuery, newOrderRow(o))
	if err != nil {
		if isDuplicate(err) {
			return domorder.ErrConflict
		}
		return fmt.Errorf("mysql: insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("mysql: order id: %w", err)
	}
	o.ID = id

	for i := range o.Items {
		it := &o.Items[i]
		res, err := r.tx.ExecContext(ctx, createItemQuery, id, it.VariantID, it.Quantity, it.Price)
		if err != nil {
			return fmt.Errorf("mysql: insert order item: %w", err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("mysql: order item id: %w", err)
		}
		it.OrderID = id
	}
	return nil
}

func (r orderRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	if err := r.tx.GetContext(ctx, &exists, orderNumberExistsQuery, number); err != nil {
		return false, fmt.Errorf("mysql: order number lookup: %w", err)
	}
	return exists, nil
}

func (r orderRepo) Get(ctx context.Context, id int64) (*domorder.Order, error) {
	return r.get(ctx, getOrderQuery, id)
}

func (r orderRepo) GetForUpdate(ctx context.Context, id int64) (*domorder.Order, error) {
	return r.get(ctx, getOrderForUpdateQuery, id)
}

func (r orderRepo) get(ctx context.Context, query string, id int64) (*domorder.Order, error) {
	var row orderRow
	if err := r.tx.GetContext(ctx, &row, query, id); err != nil {
		return nil, notFound(err, domorder.ErrNotFound)
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.domain(items[id]), nil
}

func (r orderRepo) ListByUser(ctx context.Context, userID int64) ([]*domorder.Order, error) {
	var rows []orderRow
	if err := r.tx.SelectContext(ctx, &rows, listOrdersByUserQuery, userID); err != nil {
		return nil, fmt.Errorf("mysql: list orders: %w", err)
	}
	if len(rows) == 0 {
		return []*domorder.Order{}, nil
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	items, err := r.items(ctx, ids...)
	if err != nil {
		return nil, err
	}
	res := make([]*domorder.Order, len(rows))
	for i, row := range rows {
		res[i] = row.domain(items[row.ID])
	}
	return res, nil
}

func (r orderRepo) items(ctx context.Context, orderIDs ...int64) (map[int64][]domorder.Item, error) {
	query, args, err := sqlx.In(getItemsQuery, orderIDs)
	if err != nil {
		return nil, err
	}
	var rows []itemRow
	if err := r.tx.SelectContext(ctx, &rows, r.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("mysql: load order items: %w", err)
	}
	res := make(map[int64][]domorder.Item, len(orderIDs))
	for _, row := range rows {
		res[row.OrderID] = append(res[row.OrderID], row.domain())
	}
	return res, nil
}

func (r orderRepo) Update(ctx context.Context, o *domorder.Order) error {
	if _, err := r.tx.ExecContext(ctx, updateOrderQuery, string(o.Status), o.PaymentStatus, o.TrackingNumber, o.UpdatedAt, o.ID); err != nil {
		return fmt.Errorf("mysql: update order %d: %w", o.ID, err)
	}
	return nil
}

type paymentRepo struct{ tx *sqlx.Tx }

const paymentColumns = "id, order_id, provider, reference, provider_reference, amount, status, failure_reason, created_at, updated_at"

var (
	createPaymentQuery = "INSERT INTO payments (" + paymentColumns + ") " +
		"VALUES (:id, :order_id, :provider, :reference, :provider_reference, :amount, :status, :failure_reason, :created_at, :updated_at)"
	getPaymentByReferenceQuery          = "SELECT " + paymentColumns + " FROM payments WHERE reference = ?"
	getPaymentByReferenceForUpdateQuery = getPaymentByReferenceQuery + " FOR UPDATE"
	getPaymentByProviderRefQuery        = "SELECT " + paymentColumns + " FROM payments WHERE provider = ? AND provider_reference = ? ORDER BY created_at DESC LIMIT 1 FOR UPDATE"
	updatePaymentQuery                  = "UPDATE payments SET status = ?, provider_reference = ?, failure_reason = ?, updated_at = ? WHERE reference = ?"
)

func (r paymentRepo) Insert(ctx context.Context, p *dompay.Payment) error {
	if _, err := r.tx.NamedExecContext(ctx, createPaymentQuery, newPaymentRow(p)); err != nil {
		if isDuplicate(err) {
			return dompay.ErrDuplicateReference
		}
		return fmt.Errorf("mysql: insert payment: %w", err)
	}
	return nil
}

func (r paymentRepo) GetByReference(ctx context.Context, reference string) (*dompay.Payment, error) {
	return r.get(ctx, getPaymentByReferenceQuery, reference)
}

func (r paymentRepo) GetByReferenceForUpdate(ctx context.Context, reference string) (*dompay.Payment, error) {
	return r.get(ctx, getPaymentByReferenceForUpdateQuery, reference)
}

func (r paymentRepo) GetByProviderReferenceForUpdate(ctx context.Context, provider dompay.Provider, providerRef string) (*dompay.Payment, error) {
	return r.get(ctx, getPaymentByProviderRefQuery, string(provider), providerRef)
}

func (r paymentRepo) get(ctx context.Context, query string, args ...any) (*dompay.Payment, error) {
	var row paymentRow
	if err := r.tx.GetContext(ctx, &row, query, args...); err != nil {
		return nil, notFound(err, dompay.ErrNotFound)
	}
	return row.domain(), nil
}

func (r paymentRepo) Update(ctx context.Context, p *dompay.Payment) error {
	if _, err := r.tx.ExecContext(ctx, updatePaymentQuery, string(p.Status), p.ProviderReference, p.FailureReason, p.UpdatedAt, p.Reference); err != nil {
		return fmt.Errorf("mysql: update payment %s: %w", p.Reference, err)
	}
	return nil
}
