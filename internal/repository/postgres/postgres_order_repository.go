package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// Purchase locks the product row and then the buyer's row, so purchases of
// one product or by one user are serialized and never deadlock each other.
func (r *PostgresOrderRepository) Purchase(ctx context.Context, req models.PurchaseRequest) (res *models.PurchaseResult, err error) {
	ctx, finish := observability.Observe(ctx, "order-repository", "Purchase",
		attribute.Int64("user_id", req.UserID),
		attribute.Int64("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)
	defer func() { finish(err) }()

	if req.Quantity < 1 {
		return nil, pkgerrors.Invalid("quantity must be at least 1")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Purchase", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var (
		unitPrice decimal.Decimal
		stock     int
		active    bool
	)
	err = tx.QueryRowContext(ctx, `SELECT selling_price, available_stock, is_active FROM products WHERE id = $1 FOR UPDATE`, req.ProductID).
		Scan(&unitPrice, &stock, &active)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rollback(tx, "Purchase", pkgerrors.ErrProductNotFound)
	}
	if err != nil {
		return nil, rollback(tx, "Purchase", fmt.Errorf("failed to lock product: %w", err))
	}
	if !active {
		return nil, rollback(tx, "Purchase", pkgerrors.ErrProductInactive)
	}

	total := unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))

	balance, err := lockBalance(ctx, tx, req.UserID)
	if err != nil {
		return nil, rollback(tx, "Purchase", err)
	}
	if balance.LessThan(total) {
		return nil, rollback(tx, "Purchase", pkgerrors.ErrInsufficientFunds)
	}
	if stock < req.Quantity {
		return nil, rollback(tx, "Purchase", pkgerrors.ErrInsufficientStock)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, code, serial_number FROM product_codes WHERE product_id = $1 AND status = 'available' ORDER BY id LIMIT $2 FOR UPDATE SKIP LOCKED`, req.ProductID, req.Quantity)
	if err != nil {
		return nil, rollback(tx, "Purchase", fmt.Errorf("failed to select codes: %w", err))
	}
	var (
		codeIDs []int64
		codes   []models.DeliveredCode
	)
	for rows.Next() {
		var (
			id int64
			c  models.DeliveredCode
		)
		if err = rows.Scan(&id, &c.Code, &c.SerialNumber); err != nil {
			rows.Close()
			return nil, rollback(tx, "Purchase", fmt.Errorf("failed to scan code: %w", err))
		}
		codeIDs = append(codeIDs, id)
		codes = append(codes, c)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, rollback(tx, "Purchase", fmt.Errorf("failed to read codes: %w", err))
	}
	if len(codeIDs) < req.Quantity {
		return nil, rollback(tx, "Purchase", pkgerrors.ErrInsufficientStock)
	}

	res = &models.PurchaseResult{
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		TotalPrice: total,
		Codes:      codes,
	}
	err = tx.QueryRowContext(ctx, `INSERT INTO orders (user_id, product_id, quantity, unit_price, total_price, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		req.UserID, req.ProductID, req.Quantity, unitPrice, total, models.OrderCompleted).
		Scan(&res.OrderID, &res.CreatedAt)
	if err != nil {
		return nil, rollback(tx, "Purchase", fmt.Errorf("failed to insert order: %w", err))
	}

	sold, err := tx.ExecContext(ctx, `UPDATE product_codes SET status = 'sold', order_id = $1, sold_at = now() WHERE id = ANY($2) AND status = 'available'`, res.OrderID, pq.Array(codeIDs))
	if err != nil {
		return nil, rollback(tx, "Purchase", fmt.Errorf("failed to mark codes sold: %w", err))
	}
	if n, _ := sold.RowsAffected(); int(n) != req.Quantity {
		return nil, rollback(tx, "Purchase", pkgerrors.ErrInsufficientStock)
	}

	dec, err := tx.ExecContext(ctx, `UPDATE products SET available_stock = available_stock - $1 WHERE id = $2 AND available_stock >= $1`, req.Quantity, req.ProductID)
	if err != nil {
		return nil, rollback(tx, "Purchase", fmt.Errorf("failed to decrement stock: %w", err))
	}
	if n, _ := dec.RowsAffected(); n != 1 {
		return nil, rollback(tx, "Purchase", pkgerrors.ErrInsufficientStock)
	}

	wt, err := writeEntry(ctx, tx, balance, models.LedgerEntry{
		UserID:      req.UserID,
		Type:        models.TypePurchase,
		Amount:      total.Neg(),
		Reference:   fmt.Sprintf("order:%d", res.OrderID),
		Description: fmt.Sprintf("Purchase of %d x product %d", req.Quantity, req.ProductID),
	})
	if err != nil {
		return nil, rollback(tx, "Purchase", err)
	}
	res.NewBalance = wt.BalanceAfter

	if err = tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Purchase", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("purchase completed", "method", "Purchase", "order_id", res.OrderID, "user_id", req.UserID, "product_id", req.ProductID, "quantity", req.Quantity, "total", total.StringFixed(2))
	return res, nil
}

func (r *PostgresOrderRepository) loadCodes(ctx context.Context, orderIDs []int64) (map[int64][]models.DeliveredCode, error) {
	out := make(map[int64][]models.DeliveredCode, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT order_id, code, serial_number FROM product_codes WHERE order_id = ANY($1) ORDER BY id`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load order codes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			c       models.DeliveredCode
		)
		if err := rows.Scan(&orderID, &c.Code, &c.SerialNumber); err != nil {
			return nil, fmt.Errorf("failed to scan order code: %w", err)
		}
		out[orderID] = append(out[orderID], c)
	}
	return out, rows.Err()
}

const orderColumns = `id, user_id, product_id, quantity, unit_price, total_price, status, created_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.UnitPrice, &o.TotalPrice, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetByID only returns orders owned by userID.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, userID, orderID int64) (o *models.Order, err error) {
	ctx, finish := observability.Observe(ctx, "order-repository", "GetOrderByID", attribute.Int64("order_id", orderID))
	defer func() { finish(err) }()

	o, err = scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	codes, err := r.loadCodes(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Codes = codes[o.ID]
	return o, nil
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID int64, page repository.Page) (orders []models.Order, total int, err error) {
	ctx, finish := observability.Observe(ctx, "order-repository", "ListOrders", attribute.Int64("user_id", userID))
	defer func() { finish(err) }()

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	codes, err := r.loadCodes(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Codes = codes[orders[i].ID]
	}
	return orders, total, nil
}
