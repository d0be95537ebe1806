// Package seed loads a YAML catalog (accounts, products, codes, referral
// settings) and applies it through the services. Applying the same file
// twice changes nothing.
package seed

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	service "github.com/honeynil/ResaleServiceTochka/internal/services"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type File struct {
	Users    []User    `yaml:"users"`
	Products []Product `yaml:"products"`
	Referral *Referral `yaml:"referral"`
}

type User struct {
	Name     string          `yaml:"name"`
	Email    string          `yaml:"email"`
	Password string          `yaml:"password"`
	Role     models.Role     `yaml:"role"`
	Balance  decimal.Decimal `yaml:"balance"`
}

type Product struct {
	Name        string           `yaml:"name"`
	Category    string           `yaml:"category"`
	Description string           `yaml:"description"`
	Price       decimal.Decimal  `yaml:"price"`
	Active      *bool            `yaml:"active"`
	Codes       []models.NewCode `yaml:"codes"`
}

type Referral struct {
	Type           models.CommissionType `yaml:"type"`
	Value          decimal.Decimal       `yaml:"value"`
	Enabled        bool                  `yaml:"enabled"`
	MinOrderAmount decimal.Decimal       `yaml:"min_order_amount"`
}

func (r Referral) Settings() models.ReferralSettings {
	return models.ReferralSettings{
		CommissionType:  r.Type,
		CommissionValue: r.Value,
		IsEnabled:       r.Enabled,
		MinOrderAmount:  r.MinOrderAmount,
	}
}

type Report struct {
	UsersCreated    int
	ProductsCreated int
	CodesAdded      int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Seeder applies seed files through the service layer so that every
// validation and ledger rule holds for seeded data too.
type Seeder struct {
	auth      *service.AuthService
	wallet    *service.WalletService
	catalog   *service.CatalogService
	referrals *service.ReferralService
}

func NewSeeder(auth *service.AuthService, wallet *service.WalletService, catalog *service.CatalogService, referrals *service.ReferralService) *Seeder {
	return &Seeder{auth: auth, wallet: wallet, catalog: catalog, referrals: referrals}
}

func (s *Seeder) Apply(ctx context.Context, f *File) (*Report, error) {
	report := &Report{}

	for _, u := range f.Users {
		user, err := s.auth.Provision(ctx, service.RegisterInput{
			Name:     u.Name,
			Email:    u.Email,
			Password: u.Password,
			Role:     u.Role,
		})
		if stderrors.Is(err, pkgerrors.ErrEmailExists) {
			slog.Info("seed user exists, skipping", "email", u.Email)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("user %s: %w", u.Email, err)
		}
		report.UsersCreated++

		if u.Balance.IsPositive() {
			if _, err := s.wallet.AdminCredit(ctx, 0, user.ID, u.Balance, "Seed balance"); err != nil {
				return report, fmt.Errorf("balance for %s: %w", u.Email, err)
			}
		}
	}

	existing, err := s.catalog.AdminListProducts(ctx)
	if err != nil {
		return report, err
	}
	byName := make(map[string]int64, len(existing))
	for _, p := range existing {
		byName[strings.ToLower(p.Name)] = p.ID
	}

	for _, p := range f.Products {
		id, ok := byName[strings.ToLower(strings.TrimSpace(p.Name))]
		if !ok {
			created, err := s.catalog.CreateProduct(ctx, service.ProductInput{
				Name:         p.Name,
				Category:     p.Category,
				Description:  p.Description,
				SellingPrice: p.Price,
				IsActive:     p.Active,
			})
			if err != nil {
				return report, fmt.Errorf("product %s: %w", p.Name, err)
			}
			id = created.ID
			byName[strings.ToLower(created.Name)] = id
			report.ProductsCreated++
		}
		if len(p.Codes) == 0 {
			continue
		}
		res, err := s.catalog.AddCodes(ctx, id, p.Codes)
		if err != nil {
			return report, fmt.Errorf("codes for %s: %w", p.Name, err)
		}
		report.CodesAdded += res.Added
	}

	if f.Referral != nil {
		if _, err := s.referrals.UpdateSettings(ctx, f.Referral.Settings()); err != nil {
			return report, fmt.Errorf("referral settings: %w", err)
		}
	}

	slog.Info("seed applied",
		"users_created", report.UsersCreated,
		"products_created", report.ProductsCreated,
		"codes_added", report.CodesAdded)
	return report, nil
}
