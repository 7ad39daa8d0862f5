package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres implements Store on top of PostgreSQL. Transactions run at
// SERIALIZABLE isolation; serialization failures surface as ErrConflict so
// TransactWithRetry can re-run the body.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to the database and configures the pool.
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// GetProduct retrieves a product by ID.
func (p *Postgres) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := p.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves the whole catalog.
func (p *Postgres) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := p.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// PutProduct inserts or replaces a product document.
func (p *Postgres) PutProduct(ctx context.Context, product *models.Product) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO products (id, store_id, name, image_url, price, discount_price, stock, category)
		VALUES (:id, :store_id, :name, :image_url, :price, :discount_price, :stock, :category)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id, name = EXCLUDED.name,
			image_url = EXCLUDED.image_url, price = EXCLUDED.price,
			discount_price = EXCLUDED.discount_price, stock = EXCLUDED.stock,
			category = EXCLUDED.category`,
		product)
	return err
}

// SetProductStock applies an administrative stock override.
func (p *Postgres) SetProductStock(ctx context.Context, id int64, stock int) error {
	res, err := p.db.ExecContext(ctx, "UPDATE products SET stock = $1 WHERE id = $2", stock, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	return nil
}

// GetOrder retrieves an order and its item snapshots.
func (p *Postgres) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := p.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := p.db.SelectContext(ctx, &order.Items,
		"SELECT product_id, name, image_url, unit_price, discount_price, quantity FROM order_items WHERE order_id = $1",
		id); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves order summaries, newest first. Item snapshots are
// omitted; use GetOrder for the full record.
func (p *Postgres) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := p.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// GetDiscountCode retrieves a discount code. Lookups are case-insensitive;
// codes are stored upper-cased.
func (p *Postgres) GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := p.db.GetContext(ctx, &dc, "SELECT * FROM discount_codes WHERE code = $1", strings.ToUpper(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDiscountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// PutDiscountCode inserts or replaces a discount code.
func (p *Postgres) PutDiscountCode(ctx context.Context, code *models.DiscountCode) error {
	code.Code = strings.ToUpper(code.Code)
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO discount_codes (code, kind, value)
		VALUES (:code, :kind, :value)
		ON CONFLICT (code) DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value`,
		code)
	return err
}

// DeleteDiscountCode removes a discount code.
func (p *Postgres) DeleteDiscountCode(ctx context.Context, code string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM discount_codes WHERE code = $1", strings.ToUpper(code))
	return err
}

// Transact runs fn at SERIALIZABLE isolation. Serialization failures and
// deadlocks are translated to ErrConflict.
func (p *Postgres) Transact(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return translateConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return translateConflict(err)
	}
	return nil
}

func translateConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == "40001" || pqErr.Code == "40P01") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (t *pgTx) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE products SET stock = $1 WHERE id = $2", stock, id)
	return err
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := t.tx.SelectContext(ctx, &order.Items,
		"SELECT product_id, name, image_url, unit_price, discount_price, quantity FROM order_items WHERE order_id = $1",
		id); err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, email, phone, subtotal, discount, taxes, total, status, notes, created_at)
		VALUES (:id, :email, :phone, :subtotal, :discount, :taxes, :total, :status, :notes, :created_at)`,
		order)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := struct {
			OrderID string `db:"order_id"`
			models.OrderItem
		}{OrderID: order.ID, OrderItem: order.Items[i]}

		if _, err := t.tx.NamedExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, image_url, unit_price, discount_price, quantity)
			VALUES (:order_id, :product_id, :name, :image_url, :unit_price, :discount_price, :quantity)`,
			item); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, note string) error {
	if note != "" {
		_, err := t.tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, notes = $2 WHERE id = $3", status, note, id)
		return err
	}
	_, err := t.tx.ExecContext(ctx, "UPDATE orders SET status = $1 WHERE id = $2", status, id)
	return err
}
