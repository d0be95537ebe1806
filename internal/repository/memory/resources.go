package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
)

// ResourceRepository keeps one resource kind; PT is the pointer type that
// carries the models.Resource methods.
type ResourceRepository[E any, PT interface {
	*E
	models.Resource
}] struct {
	mu     sync.Mutex
	items  map[int64]E
	nextID int64
}

func NewResourceRepository[E any, PT interface {
	*E
	models.Resource
}]() *ResourceRepository[E, PT] {
	return &ResourceRepository[E, PT]{items: make(map[int64]E)}
}

func NewResources() repository.Resources {
	return repository.Resources{
		Gateways:      NewResourceRepository[models.GatewayApplication](),
		Domains:       NewResourceRepository[models.Domain](),
		Stores:        NewResourceRepository[models.Store](),
		Campaigns:     NewResourceRepository[models.Campaign](),
		Subscriptions: NewResourceRepository[models.Subscription](),
	}
}

func (r *ResourceRepository[E, PT]) keyTaken(key string, exceptID int64) bool {
	if key == "" {
		return false
	}
	for id, item := range r.items {
		if id != exceptID && PT(&item).Key() == key {
			return true
		}
	}
	return false
}

func (r *ResourceRepository[E, PT]) Create(_ context.Context, e *E) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := PT(e)
	if r.keyTaken(p.Key(), 0) {
		return pkgerrors.ErrSlugExists
	}
	r.nextID++
	p.SetID(r.nextID)
	setTimestamps(e, true)
	r.items[r.nextID] = *e
	return nil
}

func (r *ResourceRepository[E, PT]) GetByID(_ context.Context, id int64) (*E, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, pkgerrors.ErrResourceNotFound
	}
	return &item, nil
}

func (r *ResourceRepository[E, PT]) GetByKey(_ context.Context, key string) (*E, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if key != "" && PT(&item).Key() == key {
			out := item
			return &out, nil
		}
	}
	return nil, pkgerrors.ErrResourceNotFound
}

func (r *ResourceRepository[E, PT]) List(_ context.Context, filter repository.ResourceFilter) ([]E, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []E
	for _, item := range r.items {
		p := PT(&item)
		if filter.UserID != nil && p.GetUserID() != *filter.UserID {
			continue
		}
		if filter.Status != "" && p.GetStatus() != filter.Status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return PT(&out[i]).GetID() > PT(&out[j]).GetID() })
	return out, nil
}

func (r *ResourceRepository[E, PT]) Update(_ context.Context, e *E) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := PT(e)
	current, ok := r.items[p.GetID()]
	if !ok {
		return pkgerrors.ErrResourceNotFound
	}
	if r.keyTaken(p.Key(), p.GetID()) {
		return pkgerrors.ErrSlugExists
	}
	// Статус меняется только через SetStatus
	p.SetStatus(PT(&current).GetStatus())
	setTimestamps(e, false)
	r.items[p.GetID()] = *e
	return nil
}

func (r *ResourceRepository[E, PT]) SetStatus(_ context.Context, id int64, from, to models.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return false, pkgerrors.ErrResourceNotFound
	}
	p := PT(&item)
	if p.GetStatus() != from {
		return false, nil
	}
	p.SetStatus(to)
	setTimestamps(&item, false)
	r.items[id] = item
	return true, nil
}

func (r *ResourceRepository[E, PT]) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return pkgerrors.ErrResourceNotFound
	}
	delete(r.items, id)
	return nil
}

// setTimestamps mimics gorm's CreatedAt/UpdatedAt handling.
func setTimestamps(e any, created bool) {
	now := time.Now().UTC()
	switch v := e.(type) {
	case *models.GatewayApplication:
		if created {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Domain:
		if created {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Store:
		if created {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Campaign:
		if created {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Subscription:
		if created {
			v.CreatedAt = now
		}
	}
}
