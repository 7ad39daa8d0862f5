package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"storefront-service/internal/models"
)

// MemStore is an in-memory Store with per-document versioning and optimistic
// conflict detection. Transactions record the version of every document they
// touch and commit only if none of those versions moved; otherwise the
// commit fails with ErrConflict. Used by tests and local development.
type MemStore struct {
	mu        sync.Mutex
	products  map[int64]models.Product
	orders    map[string]models.Order
	discounts map[string]models.DiscountCode
	versions  map[string]uint64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		products:  make(map[int64]models.Product),
		orders:    make(map[string]models.Order),
		discounts: make(map[string]models.DiscountCode),
		versions:  make(map[string]uint64),
	}
}

func productKey(id int64) string { return fmt.Sprintf("product/%d", id) }
func orderKey(id string) string  { return "order/" + id }

func cloneProduct(p models.Product) models.Product {
	if p.DiscountPrice != nil {
		v := *p.DiscountPrice
		p.DiscountPrice = &v
	}
	return p
}

func cloneOrder(o models.Order) models.Order {
	items := make([]models.OrderItem, len(o.Items))
	for i, it := range o.Items {
		if it.DiscountPrice != nil {
			v := *it.DiscountPrice
			it.DiscountPrice = &v
		}
		items[i] = it
	}
	o.Items = items
	return o
}

// Close implements Store.
func (m *MemStore) Close() error { return nil }

// GetProduct retrieves a product by ID.
func (m *MemStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	p = cloneProduct(p)
	return &p, nil
}

// ListProducts retrieves the whole catalog ordered by ID.
func (m *MemStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, cloneProduct(p))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// PutProduct inserts or replaces a product document.
func (m *MemStore) PutProduct(ctx context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = cloneProduct(*product)
	m.versions[productKey(product.ID)]++
	return nil
}

// SetProductStock applies an administrative stock override.
func (m *MemStore) SetProductStock(ctx context.Context, id int64, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	p.Stock = stock
	m.products[id] = p
	m.versions[productKey(id)]++
	return nil
}

// GetOrder retrieves an order and its item snapshots.
func (m *MemStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, id)
	}
	o = cloneOrder(o)
	return &o, nil
}

// ListOrders retrieves order summaries, newest first. Item snapshots are
// omitted; use GetOrder for the full record.
func (m *MemStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		o.Items = nil
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// GetDiscountCode retrieves a discount code, case-insensitively.
func (m *MemStore) GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dc, ok := m.discounts[strings.ToUpper(code)]
	if !ok {
		return nil, models.ErrDiscountNotFound
	}
	return &dc, nil
}

// PutDiscountCode inserts or replaces a discount code.
func (m *MemStore) PutDiscountCode(ctx context.Context, code *models.DiscountCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dc := *code
	dc.Code = strings.ToUpper(dc.Code)
	m.discounts[dc.Code] = dc
	return nil
}

// DeleteDiscountCode removes a discount code.
func (m *MemStore) DeleteDiscountCode(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.discounts, strings.ToUpper(code))
	return nil
}

// Transact runs fn against the committed state, staging all writes, then
// commits atomically if no touched document changed underneath.
func (m *MemStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		store:        m,
		reads:        make(map[string]uint64),
		stockWrites:  make(map[int64]int),
		orderCreates: make(map[string]models.Order),
	}

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ver := range tx.reads {
		if m.versions[key] != ver {
			return fmt.Errorf("%w: %s changed concurrently", ErrConflict, key)
		}
	}

	for id, stock := range tx.stockWrites {
		p, ok := m.products[id]
		if !ok {
			return fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
		}
		p.Stock = stock
		m.products[id] = p
		m.versions[productKey(id)]++
	}
	for id, o := range tx.orderCreates {
		m.orders[id] = cloneOrder(o)
		m.versions[orderKey(id)]++
	}
	for _, su := range tx.statusWrites {
		o, ok := m.orders[su.id]
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrOrderNotFound, su.id)
		}
		o.Status = su.status
		if su.note != "" {
			o.Notes = su.note
		}
		m.orders[su.id] = o
		m.versions[orderKey(su.id)]++
	}
	return nil
}

type statusWrite struct {
	id     string
	status models.OrderStatus
	note   string
}

type memTx struct {
	store        *MemStore
	reads        map[string]uint64
	stockWrites  map[int64]int
	orderCreates map[string]models.Order
	statusWrites []statusWrite
}

// observe records the version of a document the first time it is touched, so
// later touches in the same transaction do not overwrite the snapshot.
func (t *memTx) observe(key string, ver uint64) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = ver
	}
}

func (t *memTx) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.observe(productKey(id), t.store.versions[productKey(id)])

	p, ok := t.store.products[id]
	if !ok {
		return nil, nil
	}
	p = cloneProduct(p)
	if stock, staged := t.stockWrites[id]; staged {
		p.Stock = stock
	}
	return &p, nil
}

func (t *memTx) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	t.store.mu.Lock()
	t.observe(productKey(id), t.store.versions[productKey(id)])
	t.store.mu.Unlock()
	t.stockWrites[id] = stock
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.observe(orderKey(id), t.store.versions[orderKey(id)])

	o, ok := t.store.orders[id]
	if !ok {
		if staged, created := t.orderCreates[id]; created {
			staged = cloneOrder(staged)
			return &staged, nil
		}
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (t *memTx) CreateOrder(ctx context.Context, order *models.Order) error {
	t.store.mu.Lock()
	t.observe(orderKey(order.ID), t.store.versions[orderKey(order.ID)])
	t.store.mu.Unlock()
	t.orderCreates[order.ID] = cloneOrder(*order)
	return nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, note string) error {
	t.store.mu.Lock()
	t.observe(orderKey(id), t.store.versions[orderKey(id)])
	t.store.mu.Unlock()
	t.statusWrites = append(t.statusWrites, statusWrite{id: id, status: status, note: note})
	return nil
}
