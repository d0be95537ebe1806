package repository

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
)

type ResourceFilter struct {
	UserID *int64
	Status models.Status
}

// ResourceRepository stores one kind of owner-scoped entity.
type ResourceRepository[E any] interface {
	Create(ctx context.Context, r *E) error
	GetByID(ctx context.Context, id int64) (*E, error)
	GetByKey(ctx context.Context, key string) (*E, error)
	List(ctx context.Context, filter ResourceFilter) ([]E, error)
	Update(ctx context.Context, r *E) error
	// SetStatus moves a resource from one status to another and reports
	// false when its status is no longer from.
	SetStatus(ctx context.Context, id int64, from, to models.Status) (bool, error)
	Delete(ctx context.Context, id int64) error
}

// Resources groups the repositories of every resource kind.
type Resources struct {
	Gateways      ResourceRepository[models.GatewayApplication]
	Domains       ResourceRepository[models.Domain]
	Stores        ResourceRepository[models.Store]
	Campaigns     ResourceRepository[models.Campaign]
	Subscriptions ResourceRepository[models.Subscription]
}
