package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Zhima-Mochi/storefront/internal/application"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"
)

var errNegativeStock = errors.New("memory: stock must be non-negative")

type tx struct {
	s       *Store
	held    []string
	heldSet map[string]struct{}

	variants    map[int64]*dominv.Variant
	promos      map[int64]*pricing.PromoCode
	orders      map[int64]*domorder.Order
	newOrders   map[int64]struct{}
	claimed     []string
	payments    map[string]*dompay.Payment
	newPayments map[string]struct{}
	outbox      []domoutbox.Message
}

func newTx(s *Store) *tx {
	return &tx{
		s:           s,
		heldSet:     make(map[string]struct{}),
		variants:    make(map[int64]*dominv.Variant),
		promos:      make(map[int64]*pricing.PromoCode),
		orders:      make(map[int64]*domorder.Order),
		newOrders:   make(map[int64]struct{}),
		payments:    make(map[string]*dompay.Payment),
		newPayments: make(map[string]struct{}),
	}
}

func (t *tx) Variants() dominv.Repository     { return variantRepo{t} }
func (t *tx) Promos() pricing.PromoRepository { return promoRepo{t} }
func (t *tx) Orders() domorder.Repository     { return orderRepo{t} }
func (t *tx) Payments() dompay.Repository     { return paymentRepo{t} }
func (t *tx) Outbox() domoutbox.Writer        { return outboxWriter{t} }

var _ application.Tx = (*tx)(nil)

func (t *tx) lock(ctx context.Context, kind string, id string) error {
	key := kind + ":" + id
	if _, ok := t.heldSet[key]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.heldSet[key] = struct{}{}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held = nil
	t.heldSet = make(map[string]struct{})

	if len(t.claimed) > 0 {
		t.s.mu.Lock()
		for _, n := range t.claimed {
			delete(t.s.claimedNumbers, n)
		}
		t.s.mu.Unlock()
		t.claimed = nil
	}
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.newOrders {
		o := t.orders[id]
		if _, taken := s.orderNumbers[o.Number]; taken {
			return fmt.Errorf("memory: order number %s: %w", o.Number, domorder.ErrConflict)
		}
	}
	for ref := range t.newPayments {
		if _, taken := s.payments[ref]; taken {
			return fmt.Errorf("memory: payment reference %s: %w", ref, dompay.ErrDuplicateReference)
		}
	}

	for id, v := range t.variants {
		s.variants[id] = v
	}
	for id, p := range t.promos {
		s.promos[id] = p
	}
	for id, o := range t.orders {
		s.orders[id] = o
		s.orderNumbers[o.Number] = id
	}
	for ref, p := range t.payments {
		s.payments[ref] = p
	}
	for _, m := range t.outbox {
		s.nextOutboxID++
		m.ID = s.nextOutboxID
		s.outbox = append(s.outbox, m)
	}
	return nil
}

func (t *tx) readVariant(id int64) (*dominv.Variant, bool) {
	if v, ok := t.variants[id]; ok {
		return v.Clone(), true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.variants[id]
	return v.Clone(), ok
}

func (t *tx) readOrder(id int64) (*domorder.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o.Clone(), true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[id]
	return o.Clone(), ok
}

func (t *tx) readPayment(ref string) (*dompay.Payment, bool) {
	if p, ok := t.payments[ref]; ok {
		return p.Clone(), true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.payments[ref]
	return p.Clone(), ok
}

func (t *tx) readPromoByCode(code string) (*pricing.PromoCode, bool) {
	code = pricing.NormalizeCode(code)
	for _, p := range t.promos {
		if p.Code == code {
			return p.Clone(), true
		}
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	id, ok := t.s.promoIDs[code]
	if !ok {
		return nil, false
	}
	return t.s.promos[id].Clone(), true
}

type variantRepo struct{ t *tx }

func (r variantRepo) GetForUpdate(ctx context.Context, id int64) (*dominv.Variant, error) {
	if err := r.t.lock(ctx, "variant", strconv.FormatInt(id, 10)); err != nil {
		return nil, err
	}
	v, ok := r.t.readVariant(id)
	if !ok {
		return nil, &dominv.VariantNotFoundError{VariantID: id}
	}
	return v, nil
}

func (r variantRepo) UpdateStock(ctx context.Context, id int64, stock int) error {
	if stock < 0 {
		return errNegativeStock
	}
	if err := r.t.lock(ctx, "variant", strconv.FormatInt(id, 10)); err != nil {
		return err
	}
	v, ok := r.t.readVariant(id)
	if !ok {
		return &dominv.VariantNotFoundError{VariantID: id}
	}
	v.Stock = stock
	r.t.variants[id] = v
	return nil
}

type promoRepo struct{ t *tx }

func (r promoRepo) GetByCode(ctx context.Context, code string) (*pricing.PromoCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := r.t.readPromoByCode(code)
	if !ok {
		return nil, pricing.ErrNotFound
	}
	return p, nil
}

func (r promoRepo) GetByCodeForUpdate(ctx context.Context, code string) (*pricing.PromoCode, error) {
	p, ok := r.t.readPromoByCode(code)
	if !ok {
		return nil, pricing.ErrNotFound
	}
	if err := r.t.lock(ctx, "promo", strconv.FormatInt(p.ID, 10)); err != nil {
		return nil, err
	}
	// re-read under the lock
	p, _ = r.t.readPromoByCode(code)
	return p, nil
}

func (r promoRepo) UpdateUsage(ctx context.Context, id int64, usedCount int) error {
	if err := r.t.lock(ctx, "promo", strconv.FormatInt(id, 10)); err != nil {
		return err
	}
	var p *pricing.PromoCode
	if staged, ok := r.t.promos[id]; ok {
		p = staged
	} else {
		r.t.s.mu.Lock()
		committed, ok := r.t.s.promos[id]
		r.t.s.mu.Unlock()
		if !ok {
			return pricing.ErrNotFound
		}
		p = committed.Clone()
	}
	p.UsedCount = usedCount
	r.t.promos[id] = p
	return nil
}

type orderRepo struct{ t *tx }

func (r orderRepo) Insert(ctx context.Context, o *domorder.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.t.s
	s.mu.Lock()
	_, committed := s.orderNumbers[o.Number]
	_, claimed := s.claimedNumbers[o.Number]
	if committed || claimed {
		s.mu.Unlock()
		return domorder.ErrConflict
	}
	s.claimedNumbers[o.Number] = struct{}{}
	r.t.claimed = append(r.t.claimed, o.Number)
	s.nextOrderID++
	o.ID = s.nextOrderID
	for i := range o.Items {
		s.nextItemID++
		o.Items[i].ID = s.nextItemID
		o.Items[i].OrderID = o.ID
	}
	s.mu.Unlock()

	r.t.orders[o.ID] = o.Clone()
	r.t.newOrders[o.ID] = struct{}{}
	return nil
}

func (r orderRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for id := range r.t.newOrders {
		if r.t.orders[id].Number == number {
			return true, nil
		}
	}
	r.t.s.mu.Lock()
	defer r.t.s.mu.Unlock()
	_, ok := r.t.s.orderNumbers[number]
	return ok, nil
}

func (r orderRepo) Get(ctx context.Context, id int64) (*domorder.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := r.t.readOrder(id)
	if !ok {
		return nil, domorder.ErrNotFound
	}
	return o, nil
}

func (r orderRepo) GetForUpdate(ctx context.Context, id int64) (*domorder.Order, error) {
	if err := r.t.lock(ctx, "order", strconv.FormatInt(id, 10)); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r orderRepo) ListByUser(ctx context.Context, userID int64) ([]*domorder.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.t.s.mu.Lock()
	committed := r.t.s.committedOrdersByUser(userID)
	r.t.s.mu.Unlock()

	byID := make(map[int64]*domorder.Order, len(committed))
	for _, o := range committed {
		byID[o.ID] = o
	}
	for id, o := range r.t.orders {
		if o.UserID == userID {
			byID[id] = o.Clone()
		}
	}
	res := make([]*domorder.Order, 0, len(byID))
	for _, o := range byID {
		res = append(res, o)
	}
	sortNewestFirst(res)
	return res, nil
}

func (r orderRepo) Update(ctx context.Context, o *domorder.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, ok := r.t.readOrder(o.ID)
	if !ok {
		return domorder.ErrNotFound
	}
	current.Status = o.Status
	current.PaymentStatus = o.PaymentStatus
	current.TrackingNumber = o.TrackingNumber
	current.UpdatedAt = o.UpdatedAt
	r.t.orders[o.ID] = current
	return nil
}

type paymentRepo struct{ t *tx }

func (r paymentRepo) Insert(ctx context.Context, p *dompay.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := r.t.readPayment(p.Reference); exists {
		return dompay.ErrDuplicateReference
	}
	r.t.payments[p.Reference] = p.Clone()
	r.t.newPayments[p.Reference] = struct{}{}
	return nil
}

func (r paymentRepo) GetByReference(ctx context.Context, reference string) (*dompay.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := r.t.readPayment(reference)
	if !ok {
		return nil, dompay.ErrNotFound
	}
	return p, nil
}

func (r paymentRepo) GetByReferenceForUpdate(ctx context.Context, reference string) (*dompay.Payment, error) {
	if err := r.t.lock(ctx, "payment", reference); err != nil {
		return nil, err
	}
	return r.GetByReference(ctx, reference)
}

func (r paymentRepo) GetByProviderReferenceForUpdate(ctx context.Context, provider dompay.Provider, providerRef string) (*dompay.Payment, error) {
	ref, ok := r.referenceFor(provider, providerRef)
	if !ok {
		return nil, dompay.ErrNotFound
	}
	return r.GetByReferenceForUpdate(ctx, ref)
}

// referenceFor resolves the most recent attempt carrying the provider
// reference. Pending writes of this transaction shadow committed rows.
func (r paymentRepo) referenceFor(provider dompay.Provider, providerRef string) (string, bool) {
	var latest *dompay.Payment
	consider := func(p *dompay.Payment) {
		if p.Provider != provider || p.ProviderReference != providerRef {
			return
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) ||
			(p.CreatedAt.Equal(latest.CreatedAt) && !p.Status.IsTerminal()) {
			latest = p
		}
	}

	r.t.s.mu.Lock()
	for ref, p := range r.t.s.payments {
		if _, shadowed := r.t.payments[ref]; !shadowed {
			consider(p)
		}
	}
	r.t.s.mu.Unlock()
	for _, p := range r.t.payments {
		consider(p)
	}

	if latest == nil {
		return "", false
	}
	return latest.Reference, true
}

func (r paymentRepo) Update(ctx context.Context, p *dompay.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.t.readPayment(p.Reference); !ok {
		return dompay.ErrNotFound
	}
	r.t.payments[p.Reference] = p.Clone()
	return nil
}

type outboxWriter struct{ t *tx }

func (w outboxWriter) Append(ctx context.Context, e domoutbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := domoutbox.NewMessage(e)
	if err != nil {
		return err
	}
	w.t.outbox = append(w.t.outbox, m)
	return nil
}
