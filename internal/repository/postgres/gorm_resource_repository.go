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
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm builds a gorm handle on top of an existing pool.
func OpenGorm(db *sql.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

// AutoMigrate creates the resource tables.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.GatewayApplication{},
		&models.Domain{},
		&models.Store{},
		&models.Campaign{},
		&models.Subscription{},
	)
}

// GormResourceRepository stores one resource kind. keyColumn names the
// unique natural key looked up by GetByKey, empty if the kind has none.
type GormResourceRepository[E any] struct {
	db        *gorm.DB
	name      string
	keyColumn string
}

func NewGormResourceRepository[E any](db *gorm.DB, name, keyColumn string) *GormResourceRepository[E] {
	return &GormResourceRepository[E]{db: db, name: name, keyColumn: keyColumn}
}

func NewGormResources(db *gorm.DB) repository.Resources {
	return repository.Resources{
		Gateways:      NewGormResourceRepository[models.GatewayApplication](db, "gateway", ""),
		Domains:       NewGormResourceRepository[models.Domain](db, "domain", "domain_name"),
		Stores:        NewGormResourceRepository[models.Store](db, "store", "slug"),
		Campaigns:     NewGormResourceRepository[models.Campaign](db, "campaign", ""),
		Subscriptions: NewGormResourceRepository[models.Subscription](db, "subscription", ""),
	}
}

func (r *GormResourceRepository[E]) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.ErrResourceNotFound
	case isUniqueViolation(err, ""):
		return fmt.Errorf("%w: %s", pkgerrors.ErrSlugExists, r.name)
	default:
		return fmt.Errorf("%s repository: %w", r.name, err)
	}
}

func (r *GormResourceRepository[E]) Create(ctx context.Context, e *E) (err error) {
	ctx, finish := observability.Observe(ctx, r.name+"-repository", "Create"+r.name)
	defer func() { finish(err) }()

	if err = r.translate(r.db.WithContext(ctx).Create(e).Error); err != nil {
		slog.Error("failed to create resource", "resource", r.name, "error", err)
		return err
	}
	return nil
}

func (r *GormResourceRepository[E]) GetByID(ctx context.Context, id int64) (e *E, err error) {
	ctx, finish := observability.Observe(ctx, r.name+"-repository", "Get"+r.name)
	defer func() { finish(err) }()

	e = new(E)
	if err = r.translate(r.db.WithContext(ctx).First(e, id).Error); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *GormResourceRepository[E]) GetByKey(ctx context.Context, key string) (e *E, err error) {
	ctx, finish := observability.Observe(ctx, r.name+"-repository", "Get"+r.name+"ByKey")
	defer func() { finish(err) }()

	if r.keyColumn == "" {
		return nil, pkgerrors.ErrResourceNotFound
	}
	e = new(E)
	if err = r.translate(r.db.WithContext(ctx).Where(r.keyColumn+" = ?", key).First(e).Error); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *GormResourceRepository[E]) List(ctx context.Context, filter repository.ResourceFilter) (out []E, err error) {
	ctx, finish := observability.Observe(ctx, r.name+"-repository", "List"+r.name)
	defer func() { finish(err) }()

	q := r.db.WithContext(ctx).Model(new(E))
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if err = r.translate(q.Order("id DESC").Find(&out).Error); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes the editable columns. Status only moves through SetStatus.
func (r *GormResourceRepository[E]) Update(ctx context.Context, e *E) (err error) {
	ctx, finish := observability.Observe(ctx, r.name+"-repository", "Update"+r.name)
	defer func() { finish(err) }()

	res := r.db.WithContext(ctx).Model(e).
		Select("*").
		Omit("id", "status", "created_at").
		Updates(e)
	if err = r.translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrResourceNotFound
	}
	return nil
}

func (r *GormResourceRepository[E]) SetStatus(ctx context.Context, id int64, from, to models.Status) (ok bool, err error) {
	ctx, finish := observability.Observe(ctx, r.name+"-repository", "Set"+r.name+"Status")
	defer func() { finish(err) }()

	res := r.db.WithContext(ctx).Model(new(E)).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if err = r.translate(res.Error); err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

func (r *GormResourceRepository[E]) Delete(ctx context.Context, id int64) (err error) {
	ctx, finish := observability.Observe(ctx, r.name+"-repository", "Delete"+r.name)
	defer func() { finish(err) }()

	res := r.db.WithContext(ctx).Delete(new(E), id)
	if err = r.translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrResourceNotFound
	}
	return nil
}
