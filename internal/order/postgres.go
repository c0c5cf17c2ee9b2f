package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/shadowdestructor/storefront/internal/catalog"
	"github.com/shadowdestructor/storefront/internal/outbox"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

// DB exposes the underlying pool so sibling stores (catalog, outbox) can
// share the same connection configuration.
func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) NextSequence(ctx context.Context, day time.Time) (int, error) {
	query := `INSERT INTO order_sequences (day, seq) VALUES ($1, 1)
	          ON CONFLICT (day) DO UPDATE SET seq = order_sequences.seq + 1
	          RETURNING seq`

	var seq int
	if err := r.db.QueryRowContext(ctx, query, day.Format("2006-01-02")).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next order sequence: %w", err)
	}
	return seq, nil
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, o *Order, decrements []catalog.StockAdjustment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer tx.Rollback()

	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}

	query := `INSERT INTO orders
	          (id, number, user_id, email, shipping_address, billing_address, payment_method,
	           payment_intent_id, status, payment_status, subtotal, tax, shipping, discount, total,
	           created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())`

	_, err = tx.ExecContext(ctx, query,
		o.ID,
		o.Number,
		o.UserID,
		o.Email,
		shippingJSON,
		billingJSON,
		o.PaymentMethod,
		o.PaymentIntentID,
		o.Status,
		o.PaymentStatus,
		o.Subtotal,
		o.Tax,
		o.Shipping,
		o.Discount,
		o.Total,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items
	              (id, order_id, product_id, variant_id, product_name, variant_name, unit_price, quantity, line_total)
	              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, itemQuery,
			item.ID,
			o.ID,
			item.ProductID,
			item.VariantID,
			item.ProductName,
			item.VariantName,
			item.UnitPrice,
			item.Quantity,
			item.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := catalog.AdjustStockTx(ctx, tx, decrements); err != nil {
		return err
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order payload: %w", err)
	}
	if err := outbox.InsertTx(ctx, tx, o.ID.String(), outbox.EventOrderCreated, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

const orderColumns = `id, number, user_id, email, shipping_address, billing_address, payment_method,
	payment_intent_id, status, payment_status, subtotal, tax, shipping, discount, total, created_at, updated_at`

func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	return r.getOrder(ctx, query, id)
}

func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE number = $1`, orderColumns)
	return r.getOrder(ctx, query, number)
}

func (r *PostgresRepository) getOrder(ctx context.Context, query string, arg interface{}) (*Order, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o            Order
		shippingJSON []byte
		billingJSON  []byte
	)
	err := row.Scan(
		&o.ID,
		&o.Number,
		&o.UserID,
		&o.Email,
		&shippingJSON,
		&billingJSON,
		&o.PaymentMethod,
		&o.PaymentIntentID,
		&o.Status,
		&o.PaymentStatus,
		&o.Subtotal,
		&o.Tax,
		&o.Shipping,
		&o.Discount,
		&o.Total,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, o *Order) error {
	query := `SELECT id, order_id, product_id, variant_id, product_name, variant_name, unit_price, quantity, line_total
	          FROM order_items WHERE order_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, o.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.VariantID,
			&item.ProductName,
			&item.VariantName,
			&item.UnitPrice,
			&item.Quantity,
			&item.LineTotal,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

// buildWhere turns a Query into a parameterized predicate. Filters are
// explicit struct fields, never caller-supplied SQL fragments.
func buildWhere(q Query) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if q.UserID != nil {
		add("user_id = $%d", *q.UserID)
	}
	if q.Status != nil {
		add("status = $%d", *q.Status)
	}
	if q.PaymentStatus != nil {
		add("payment_status = $%d", *q.PaymentStatus)
	}
	if q.CreatedFrom != nil {
		add("created_at >= $%d", *q.CreatedFrom)
	}
	if q.CreatedTo != nil {
		add("created_at < $%d", *q.CreatedTo)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *PostgresRepository) ListOrders(ctx context.Context, q Query) ([]*Order, error) {
	where, args := buildWhere(q)

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d`,
		orderColumns, where, len(args))
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, o := range orders {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	if err := updateColumnTx(ctx, tx, id, "status", string(status)); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"order_id": id.String(), "status": string(status)})
	if err := outbox.InsertTx(ctx, tx, id.String(), outbox.EventOrderStatusChanged, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment status update: %w", err)
	}
	defer tx.Rollback()

	if err := updateColumnTx(ctx, tx, id, "payment_status", string(status)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment status update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_intent_id = $1, updated_at = NOW() WHERE id = $2`, intentID, id)
	if err != nil {
		return fmt.Errorf("set payment intent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set payment intent rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func updateColumnTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, column, value string) error {
	query := fmt.Sprintf(`UPDATE orders SET %s = $1, updated_at = NOW() WHERE id = $2`, column)
	res, err := tx.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update order %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PostgresRepository) CancelOrder(ctx context.Context, o *Order, restores []catalog.StockAdjustment, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel order: %w", err)
	}
	defer tx.Rollback()

	if err := catalog.AdjustStockTx(ctx, tx, restores); err != nil {
		return err
	}

	if err := updateColumnTx(ctx, tx, o.ID, "status", string(StatusCancelled)); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"order_id": o.ID.String(), "reason": reason})
	if err := outbox.InsertTx(ctx, tx, o.ID.String(), outbox.EventOrderCancelled, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Summary(ctx context.Context, userID *string) (*AggregateSummary, error) {
	query := `SELECT
	            COUNT(*),
	            COALESCE(SUM(total) FILTER (WHERE payment_status = 'PAID'), 0),
	            COUNT(*) FILTER (WHERE status = 'PENDING'),
	            COUNT(*) FILTER (WHERE status = 'DELIVERED')
	          FROM orders`
	var args []interface{}
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}

	var s AggregateSummary
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.TotalOrders,
		&s.TotalRevenue,
		&s.PendingOrders,
		&s.DeliveredOrders,
	)
	if err != nil {
		return nil, fmt.Errorf("query order summary: %w", err)
	}
	return &s, nil
}
