package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Zhima-Mochi/storefront/internal/application"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/pricing"
)

// Store is an in-process database with transactions and blocking row locks.
// Writes are staged per transaction and become visible only on commit.
type Store struct {
	mu             sync.Mutex
	variants       map[int64]*dominv.Variant
	promos         map[int64]*pricing.PromoCode
	promoIDs       map[string]int64
	orders         map[int64]*domorder.Order
	orderNumbers   map[string]int64
	claimedNumbers map[string]struct{} // inserted by open transactions
	payments       map[string]*dompay.Payment
	outbox         []domoutbox.Message

	nextOrderID  int64
	nextItemID   int64
	nextOutboxID int64

	locks *lockTable
}

var _ application.UnitOfWork = (*Store)(nil)
var _ domoutbox.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		variants:       make(map[int64]*dominv.Variant),
		promos:         make(map[int64]*pricing.PromoCode),
		promoIDs:       make(map[string]int64),
		orders:         make(map[int64]*domorder.Order),
		orderNumbers:   make(map[string]int64),
		claimedNumbers: make(map[string]struct{}),
		payments:       make(map[string]*dompay.Payment),
		locks:          newLockTable(),
	}
}

func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	defer func() {
		if r := recover(); r != nil {
			t.release()
			panic(r)
		}
	}()

	if err = fn(ctx, t); err != nil {
		t.release()
		return err
	}
	err = t.commit()
	t.release()
	return err
}

// AddVariant seeds or replaces a variant outside any transaction.
func (s *Store) AddVariant(v *dominv.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v.Clone()
}

// AddPromo seeds or replaces a promo code outside any transaction.
func (s *Store) AddPromo(p *pricing.PromoCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Clone()
	c.Code = pricing.NormalizeCode(c.Code)
	s.promos[c.ID] = c
	s.promoIDs[c.Code] = c.ID
}

func (s *Store) Variant(id int64) (*dominv.Variant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[id]
	return v.Clone(), ok
}

func (s *Store) Promo(code string) (*pricing.PromoCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.promoIDs[pricing.NormalizeCode(code)]
	if !ok {
		return nil, false
	}
	return s.promos[id].Clone(), true
}

func (s *Store) Order(id int64) (*domorder.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o.Clone(), ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Payment(reference string) (*dompay.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	return p.Clone(), ok
}

// Messages returns every outbox message in append order.
func (s *Store) Messages() []domoutbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domoutbox.Message(nil), s.outbox...)
}

func (s *Store) Pending(ctx context.Context, limit int) ([]domoutbox.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []domoutbox.Message
	for _, m := range s.outbox {
		if m.Status != domoutbox.StatusPending {
			continue
		}
		res = append(res, m)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (s *Store) MarkDone(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if _, ok := done[s.outbox[i].ID]; ok {
			s.outbox[i].Status = domoutbox.StatusDone
		}
	}
	return nil
}

func (s *Store) committedOrdersByUser(userID int64) []*domorder.Order {
	var res []*domorder.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			res = append(res, o.Clone())
		}
	}
	return res
}

func sortNewestFirst(orders []*domorder.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

type lockTable struct {
	mu   sync.Mutex
	rows map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{rows: make(map[string]chan struct{})}
}

// acquire blocks until the row is free or ctx is done.
func (l *lockTable) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	ch, ok := l.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.rows[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("memory: lock %s: %w", key, ctx.Err())
	}
}

func (l *lockTable) release(key string) {
	l.mu.Lock()
	ch := l.rows[key]
	l.mu.Unlock()
	<-ch
}
