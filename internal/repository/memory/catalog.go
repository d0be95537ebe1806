package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
)

type ProductRepository struct{ s *Store }

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

func (r *ProductRepository) Create(_ context.Context, p *models.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextProduct++
	p.ID = r.s.nextProduct
	p.AvailableStock = 0
	p.CreatedAt = time.Now().UTC()
	stored := *p
	r.s.products[p.ID] = &stored
	return nil
}

func (r *ProductRepository) Update(_ context.Context, p *models.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.products[p.ID]
	if !ok {
		return pkgerrors.ErrProductNotFound
	}
	cur.Name, cur.Category, cur.Description = p.Name, p.Category, p.Description
	cur.SellingPrice, cur.IsActive = p.SellingPrice, p.IsActive
	p.AvailableStock, p.CreatedAt = cur.AvailableStock, cur.CreatedAt
	return nil
}

func (r *ProductRepository) GetByID(_ context.Context, id int64) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, pkgerrors.ErrProductNotFound
	}
	out := *p
	return &out, nil
}

func (r *ProductRepository) List(_ context.Context, filter repository.ProductFilter) ([]models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Product
	for _, p := range r.s.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *ProductRepository) AddCodes(_ context.Context, productID int64, codes []models.NewCode) (int, int, error) {
	if len(codes) == 0 {
		return 0, 0, pkgerrors.Invalid("no codes supplied")
	}
	for _, c := range codes {
		if c.Code == "" {
			return 0, 0, pkgerrors.Invalid("code must not be empty")
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return 0, 0, pkgerrors.ErrProductNotFound
	}

	existing := make(map[string]bool, len(r.s.codes[productID]))
	for _, c := range r.s.codes[productID] {
		existing[c.Code] = true
	}
	added := 0
	for _, c := range codes {
		if existing[c.Code] {
			continue
		}
		existing[c.Code] = true
		r.s.nextCode++
		r.s.codes[productID] = append(r.s.codes[productID], &models.ProductCode{
			ID:           r.s.nextCode,
			ProductID:    productID,
			Code:         c.Code,
			SerialNumber: c.SerialNumber,
			Status:       models.CodeAvailable,
		})
		added++
	}
	p.AvailableStock += added
	return added, p.AvailableStock, nil
}

type OrderRepository struct{ s *Store }

func (r *OrderRepository) Purchase(_ context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	if req.Quantity < 1 {
		return nil, pkgerrors.Invalid("quantity must be at least 1")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[req.ProductID]
	if !ok {
		return nil, pkgerrors.ErrProductNotFound
	}
	if !p.IsActive {
		return nil, pkgerrors.ErrProductInactive
	}
	u, ok := r.s.users[req.UserID]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	total := p.SellingPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	if u.Balance.LessThan(total) {
		return nil, pkgerrors.ErrInsufficientFunds
	}
	if p.AvailableStock < req.Quantity {
		return nil, pkgerrors.ErrInsufficientStock
	}

	var picked []*models.ProductCode
	for _, c := range r.s.codes[req.ProductID] {
		if c.Status == models.CodeAvailable {
			picked = append(picked, c)
			if len(picked) == req.Quantity {
				break
			}
		}
	}
	if len(picked) < req.Quantity {
		return nil, pkgerrors.ErrInsufficientStock
	}

	now := time.Now().UTC()
	orderID := r.s.nextOrder + 1
	wt, err := r.s.applyLocked(models.LedgerEntry{
		UserID:      req.UserID,
		Type:        models.TypePurchase,
		Amount:      total.Neg(),
		Reference:   fmt.Sprintf("order:%d", orderID),
		Description: fmt.Sprintf("Purchase of %d x product %d", req.Quantity, req.ProductID),
	})
	if err != nil {
		return nil, err
	}

	r.s.nextOrder = orderID
	order := &models.Order{
		ID:         orderID,
		UserID:     req.UserID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		UnitPrice:  p.SellingPrice,
		TotalPrice: total,
		Status:     models.OrderCompleted,
		CreatedAt:  now,
	}
	for _, c := range picked {
		c.Status = models.CodeSold
		c.OrderID = &order.ID
		c.SoldAt = &now
		order.Codes = append(order.Codes, models.DeliveredCode{Code: c.Code, SerialNumber: c.SerialNumber})
	}
	p.AvailableStock -= req.Quantity
	r.s.orders[order.ID] = order

	return &models.PurchaseResult{
		OrderID:    order.ID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		TotalPrice: total,
		Codes:      append([]models.DeliveredCode(nil), order.Codes...),
		NewBalance: wt.BalanceAfter,
		CreatedAt:  now,
	}, nil
}

func copyOrder(o *models.Order) models.Order {
	out := *o
	out.Codes = append([]models.DeliveredCode(nil), o.Codes...)
	return out
}

func (r *OrderRepository) GetByID(_ context.Context, userID, orderID int64) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, pkgerrors.ErrOrderNotFound
	}
	out := copyOrder(o)
	return &out, nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID int64, page repository.Page) ([]models.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []models.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			all = append(all, copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return window(all, page), len(all), nil
}

// AvailableCodes counts unsold codes of a product.
func (s *Store) AvailableCodes(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes[productID] {
		if c.Status == models.CodeAvailable {
			n++
		}
	}
	return n
}
