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
	"go.opentelemetry.io/otel/attribute"
)

const productColumns = `id, name, category, description, selling_price, available_stock, is_active, created_at`

type PostgresProductRepository struct {
	db *sql.DB
}

func NewPostgresProductRepository(db *sql.DB) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.SellingPrice, &p.AvailableStock, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func validateProduct(p *models.Product) error {
	if p == nil {
		return pkgerrors.ErrNilProduct
	}
	if p.Name == "" {
		return pkgerrors.Invalid("product name is required")
	}
	if !p.SellingPrice.IsPositive() {
		return pkgerrors.Invalid("selling price must be positive")
	}
	return nil
}

// Create inserts the product with zero stock; stock comes from AddCodes.
func (r *PostgresProductRepository) Create(ctx context.Context, p *models.Product) (err error) {
	ctx, finish := observability.Observe(ctx, "product-repository", "CreateProduct")
	defer func() { finish(err) }()

	if err = validateProduct(p); err != nil {
		return err
	}

	query := `INSERT INTO products (name, category, description, selling_price, is_active) VALUES ($1, $2, $3, $4, $5) RETURNING id, available_stock, created_at`
	err = r.db.QueryRowContext(ctx, query, p.Name, p.Category, p.Description, p.SellingPrice, p.IsActive).
		Scan(&p.ID, &p.AvailableStock, &p.CreatedAt)
	if err != nil {
		slog.Error("failed to create product", "method", "Create", "name", p.Name, "error", err)
		return fmt.Errorf("failed to create product: %w", err)
	}

	slog.Info("product created", "method", "Create", "product_id", p.ID, "name", p.Name)
	return nil
}

// Update changes the descriptive fields; available_stock is never written here.
func (r *PostgresProductRepository) Update(ctx context.Context, p *models.Product) (err error) {
	ctx, finish := observability.Observe(ctx, "product-repository", "UpdateProduct")
	defer func() { finish(err) }()

	if err = validateProduct(p); err != nil {
		return err
	}

	query := `UPDATE products SET name = $1, category = $2, description = $3, selling_price = $4, is_active = $5 WHERE id = $6 RETURNING available_stock, created_at`
	err = r.db.QueryRowContext(ctx, query, p.Name, p.Category, p.Description, p.SellingPrice, p.IsActive, p.ID).
		Scan(&p.AvailableStock, &p.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrProductNotFound
	}
	if err != nil {
		slog.Error("failed to update product", "method", "Update", "product_id", p.ID, "error", err)
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id int64) (p *models.Product, err error) {
	ctx, finish := observability.Observe(ctx, "product-repository", "GetProductByID", attribute.Int64("product_id", id))
	defer func() { finish(err) }()

	p, err = scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrProductNotFound
	}
	if err != nil {
		slog.Error("failed to get product", "method", "GetByID", "product_id", id, "error", err)
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *PostgresProductRepository) List(ctx context.Context, filter repository.ProductFilter) (products []models.Product, err error) {
	ctx, finish := observability.Observe(ctx, "product-repository", "ListProducts")
	defer func() { finish(err) }()

	query := `SELECT ` + productColumns + ` FROM products WHERE ($1 = '' OR category = $1) AND (NOT $2 OR is_active) ORDER BY category, name, id`
	rows, err := r.db.QueryContext(ctx, query, filter.Category, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *PostgresProductRepository) AddCodes(ctx context.Context, productID int64, codes []models.NewCode) (added, stock int, err error) {
	ctx, finish := observability.Observe(ctx, "product-repository", "AddCodes",
		attribute.Int64("product_id", productID),
		attribute.Int("codes", len(codes)),
	)
	defer func() { finish(err) }()

	if len(codes) == 0 {
		return 0, 0, pkgerrors.Invalid("no codes supplied")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Same lock a purchase takes first, so stock and codes move together.
	err = tx.QueryRowContext(ctx, `SELECT available_stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, 0, rollback(tx, "AddCodes", pkgerrors.ErrProductNotFound)
	}
	if err != nil {
		return 0, 0, rollback(tx, "AddCodes", fmt.Errorf("failed to lock product: %w", err))
	}

	insert := `INSERT INTO product_codes (product_id, code, serial_number) VALUES ($1, $2, $3) ON CONFLICT (product_id, code) DO NOTHING`
	for _, c := range codes {
		if c.Code == "" {
			return 0, 0, rollback(tx, "AddCodes", pkgerrors.Invalid("code must not be empty"))
		}
		res, err := tx.ExecContext(ctx, insert, productID, c.Code, c.SerialNumber)
		if err != nil {
			return 0, 0, rollback(tx, "AddCodes", fmt.Errorf("failed to insert code: %w", err))
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}

	err = tx.QueryRowContext(ctx, `UPDATE products SET available_stock = available_stock + $1 WHERE id = $2 RETURNING available_stock`, added, productID).Scan(&stock)
	if err != nil {
		return 0, 0, rollback(tx, "AddCodes", fmt.Errorf("failed to update stock: %w", err))
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("codes added", "method", "AddCodes", "product_id", productID, "added", added, "stock", stock)
	return added, stock, nil
}
