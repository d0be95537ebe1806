package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,61}[a-z0-9])$`)
	domainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
)

// Actor is the caller of an owner-scoped operation. Admins act on any
// owner's resources.
type Actor struct {
	UserID int64
	Admin  bool
}

type ResourceConfig struct {
	DomainFee          decimal.Decimal
	Plans              map[string]decimal.Decimal
	SubscriptionPeriod time.Duration
}

type GatewayInput struct {
	GatewayName  string `json:"gateway_name"`
	BusinessName string `json:"business_name"`
	Details      string `json:"details"`
}

type DomainInput struct {
	DomainName string `json:"domain_name"`
	StoreID    *int64 `json:"store_id,omitempty"`
}

type StoreInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Theme       string `json:"theme"`
}

type CampaignInput struct {
	Name     string          `json:"name"`
	Channel  string          `json:"channel"`
	Budget   decimal.Decimal `json:"budget"`
	StartsAt *time.Time      `json:"starts_at,omitempty"`
	EndsAt   *time.Time      `json:"ends_at,omitempty"`
}

// Plan is a purchasable subscription tier.
type Plan struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type ResourceService struct {
	res    repository.Resources
	wallet *WalletService
	cfg    ResourceConfig
}

func NewResourceService(res repository.Resources, wallet *WalletService, cfg ResourceConfig) *ResourceService {
	if cfg.SubscriptionPeriod <= 0 {
		cfg.SubscriptionPeriod = 30 * 24 * time.Hour
	}
	return &ResourceService{res: res, wallet: wallet, cfg: cfg}
}

// loadOwned fetches a resource the actor may act on. Resources of other
// owners look missing.
func loadOwned[E any, PT interface {
	*E
	models.Resource
}](ctx context.Context, repo repository.ResourceRepository[E], actor Actor, id int64) (*E, error) {
	e, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && PT(e).GetUserID() != actor.UserID {
		return nil, pkgerrors.ErrResourceNotFound
	}
	return e, nil
}

// transition moves a resource along its status graph. A concurrent change
// between the read and the write is reported as an invalid transition.
func transition[E any, PT interface {
	*E
	models.Resource
}](ctx context.Context, repo repository.ResourceRepository[E], actor Actor, id int64, to models.Status) (*E, error) {
	e, err := loadOwned[E, PT](ctx, repo, actor, id)
	if err != nil {
		return nil, err
	}
	p := PT(e)
	from := p.GetStatus()
	if !p.Transitions().Allowed(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", pkgerrors.ErrInvalidTransition, from, to)
	}
	ok, err := repo.SetStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: status changed concurrently", pkgerrors.ErrInvalidTransition)
	}
	p.SetStatus(to)
	return e, nil
}

func listFor[E any](ctx context.Context, repo repository.ResourceRepository[E], actor Actor, status models.Status) ([]E, error) {
	filter := repository.ResourceFilter{Status: status}
	if !actor.Admin {
		filter.UserID = &actor.UserID
	}
	out, err := repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []E{}
	}
	return out, nil
}

func reviewStatus(status models.Status) error {
	if status != models.StatusApproved && status != models.StatusRejected {
		return pkgerrors.Invalid("status must be approved or rejected")
	}
	return nil
}

// Gateway applications

func (s *ResourceService) ApplyGateway(ctx context.Context, userID int64, in GatewayInput) (*models.GatewayApplication, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ApplyGateway")
	defer span.End()

	in.GatewayName = strings.TrimSpace(in.GatewayName)
	if in.GatewayName == "" {
		span.SetStatus(codes.Error, "missing gateway name")
		return nil, pkgerrors.Invalid("gateway_name is required")
	}
	app := &models.GatewayApplication{
		UserID:       userID,
		GatewayName:  in.GatewayName,
		BusinessName: strings.TrimSpace(in.BusinessName),
		Details:      in.Details,
		Status:       models.StatusPending,
	}
	if err := s.res.Gateways.Create(ctx, app); err != nil {
		return nil, fail(span, err, "create application failed")
	}
	slog.Info("gateway application submitted", "application_id", app.ID, "user_id", userID, "gateway", app.GatewayName)
	return app, nil
}

func (s *ResourceService) ListGateways(ctx context.Context, actor Actor, status models.Status) ([]models.GatewayApplication, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ListGateways")
	defer span.End()

	out, err := listFor(ctx, s.res.Gateways, actor, status)
	if err != nil {
		return nil, fail(span, err, "list applications failed")
	}
	return out, nil
}

func (s *ResourceService) ReviewGateway(ctx context.Context, id int64, status models.Status, note string) (*models.GatewayApplication, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ReviewGateway")
	defer span.End()
	span.SetAttributes(attribute.Int64("application_id", id), attribute.String("status", string(status)))

	if err := reviewStatus(status); err != nil {
		span.SetStatus(codes.Error, "invalid status")
		return nil, err
	}
	app, err := transition[models.GatewayApplication](ctx, s.res.Gateways, Actor{Admin: true}, id, status)
	if err != nil {
		return nil, fail(span, err, "review failed")
	}
	if note = strings.TrimSpace(note); note != "" {
		app.AdminNote = note
		if err := s.res.Gateways.Update(ctx, app); err != nil {
			return nil, fail(span, err, "save note failed")
		}
	}
	slog.Info("gateway application reviewed", "application_id", id, "status", status)
	return app, nil
}

// Domains

func (s *ResourceService) RegisterDomain(ctx context.Context, userID int64, in DomainInput) (*models.Domain, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "RegisterDomain")
	defer span.End()

	name := strings.ToLower(strings.TrimSpace(in.DomainName))
	if len(name) > 253 || !domainPattern.MatchString(name) {
		span.SetStatus(codes.Error, "invalid domain")
		return nil, pkgerrors.Invalid("domain_name is not a valid host name")
	}
	if in.StoreID != nil {
		if _, err := loadOwned[models.Store](ctx, s.res.Stores, Actor{UserID: userID}, *in.StoreID); err != nil {
			return nil, fail(span, err, "store lookup failed")
		}
	}

	d := &models.Domain{
		UserID:     userID,
		StoreID:    in.StoreID,
		DomainName: name,
		Fee:        s.cfg.DomainFee,
		Status:     models.StatusPending,
	}
	if err := s.res.Domains.Create(ctx, d); err != nil {
		return nil, fail(span, err, "create domain failed")
	}

	if d.Fee.IsPositive() {
		_, err := s.wallet.Charge(ctx, userID, models.TypeDomain, d.Fee,
			fmt.Sprintf("domain:%d", d.ID), "Domain registration "+d.DomainName)
		if err != nil {
			// Without the fee the registration does not stand.
			s.dropUnpaidDomain(ctx, d)
			return nil, fail(span, err, "domain fee charge failed")
		}
	}

	slog.Info("domain registered", "domain_id", d.ID, "user_id", userID, "domain", d.DomainName, "fee", d.Fee.String())
	return d, nil
}

// dropUnpaidDomain removes a registration whose fee was never charged. If the
// row cannot be removed it is closed with a zero fee, so that no later
// review refunds money that was not paid.
func (s *ResourceService) dropUnpaidDomain(ctx context.Context, d *models.Domain) {
	derr := s.res.Domains.Delete(ctx, d.ID)
	if derr == nil {
		return
	}
	slog.Error("failed to remove unpaid domain", "domain_id", d.ID, "error", derr)

	d.Fee = decimal.Zero
	d.AdminNote = "registration fee not paid"
	if err := s.res.Domains.Update(ctx, d); err != nil {
		slog.Error("failed to clear fee of unpaid domain", "domain_id", d.ID, "error", err)
		return
	}
	if _, err := s.res.Domains.SetStatus(ctx, d.ID, models.StatusPending, models.StatusRejected); err != nil {
		slog.Error("failed to close unpaid domain", "domain_id", d.ID, "error", err)
	}
}

func (s *ResourceService) ListDomains(ctx context.Context, actor Actor, status models.Status) ([]models.Domain, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ListDomains")
	defer span.End()

	out, err := listFor(ctx, s.res.Domains, actor, status)
	if err != nil {
		return nil, fail(span, err, "list domains failed")
	}
	return out, nil
}

// ReviewDomain approves or rejects a pending domain. Rejection refunds the
// registration fee.
func (s *ResourceService) ReviewDomain(ctx context.Context, id int64, status models.Status, note string) (*models.Domain, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ReviewDomain")
	defer span.End()
	span.SetAttributes(attribute.Int64("domain_id", id), attribute.String("status", string(status)))

	if err := reviewStatus(status); err != nil {
		span.SetStatus(codes.Error, "invalid status")
		return nil, err
	}
	d, err := transition[models.Domain](ctx, s.res.Domains, Actor{Admin: true}, id, status)
	if err != nil {
		return nil, fail(span, err, "review failed")
	}

	// Only the review that won the transition refunds. If the refund fails
	// the domain goes back to pending so the rejection can be retried.
	if status == models.StatusRejected && d.Fee.IsPositive() {
		_, err := s.wallet.Refund(ctx, d.UserID, d.Fee,
			fmt.Sprintf("domain:%d:refund", d.ID), "Refund for rejected domain "+d.DomainName)
		if err != nil {
			slog.Error("failed to refund domain fee", "domain_id", d.ID, "user_id", d.UserID, "error", err)
			if ok, rerr := s.res.Domains.SetStatus(ctx, d.ID, models.StatusRejected, models.StatusPending); rerr != nil || !ok {
				slog.Error("failed to reopen domain after refund failure", "domain_id", d.ID, "error", rerr)
			}
			return nil, fail(span, err, "refund failed")
		}
	}

	if note = strings.TrimSpace(note); note != "" {
		d.AdminNote = note
		if err := s.res.Domains.Update(ctx, d); err != nil {
			return nil, fail(span, err, "save note failed")
		}
	}
	slog.Info("domain reviewed", "domain_id", id, "status", status)
	return d, nil
}

// Stores

func (in *StoreInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if in.Name == "" {
		return pkgerrors.Invalid("name is required")
	}
	if !slugPattern.MatchString(in.Slug) {
		return pkgerrors.Invalid("slug must be 3-63 lowercase letters, digits or hyphens")
	}
	if strings.Trim(in.Slug, "0123456789") == "" {
		return pkgerrors.Invalid("slug must not be numeric")
	}
	return nil
}

func (s *ResourceService) CreateStore(ctx context.Context, userID int64, in StoreInput) (*models.Store, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "CreateStore")
	defer span.End()

	if err := in.normalize(); err != nil {
		span.SetStatus(codes.Error, "invalid store")
		return nil, err
	}
	st := &models.Store{
		UserID:      userID,
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		Theme:       in.Theme,
		Status:      models.StatusActive,
	}
	if err := s.res.Stores.Create(ctx, st); err != nil {
		return nil, fail(span, err, "create store failed")
	}
	slog.Info("store created", "store_id", st.ID, "user_id", userID, "slug", st.Slug)
	return st, nil
}

func (s *ResourceService) UpdateStore(ctx context.Context, actor Actor, id int64, in StoreInput) (*models.Store, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "UpdateStore")
	defer span.End()

	if err := in.normalize(); err != nil {
		span.SetStatus(codes.Error, "invalid store")
		return nil, err
	}
	st, err := loadOwned[models.Store](ctx, s.res.Stores, actor, id)
	if err != nil {
		return nil, fail(span, err, "store lookup failed")
	}
	st.Name, st.Slug, st.Description, st.Theme = in.Name, in.Slug, in.Description, in.Theme
	if err := s.res.Stores.Update(ctx, st); err != nil {
		return nil, fail(span, err, "update store failed")
	}
	return st, nil
}

func (s *ResourceService) SetStoreStatus(ctx context.Context, actor Actor, id int64, status models.Status) (*models.Store, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "SetStoreStatus")
	defer span.End()

	st, err := transition[models.Store](ctx, s.res.Stores, actor, id, status)
	if err != nil {
		return nil, fail(span, err, "store status change failed")
	}
	return st, nil
}

func (s *ResourceService) GetStore(ctx context.Context, actor Actor, id int64) (*models.Store, error) {
	return loadOwned[models.Store](ctx, s.res.Stores, actor, id)
}

func (s *ResourceService) ListStores(ctx context.Context, actor Actor) ([]models.Store, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ListStores")
	defer span.End()

	out, err := listFor(ctx, s.res.Stores, actor, "")
	if err != nil {
		return nil, fail(span, err, "list stores failed")
	}
	return out, nil
}

// Campaigns

func (in *CampaignInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Channel = strings.TrimSpace(in.Channel)
	if in.Name == "" {
		return pkgerrors.Invalid("name is required")
	}
	if in.Budget.IsNegative() {
		return pkgerrors.Invalid("budget cannot be negative")
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return pkgerrors.Invalid("ends_at must be after starts_at")
	}
	return nil
}

func (s *ResourceService) CreateCampaign(ctx context.Context, userID int64, in CampaignInput) (*models.Campaign, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "CreateCampaign")
	defer span.End()

	if err := in.normalize(); err != nil {
		span.SetStatus(codes.Error, "invalid campaign")
		return nil, err
	}
	c := &models.Campaign{
		UserID:   userID,
		Name:     in.Name,
		Channel:  in.Channel,
		Budget:   in.Budget,
		Status:   models.StatusActive,
		StartsAt: in.StartsAt,
		EndsAt:   in.EndsAt,
	}
	if err := s.res.Campaigns.Create(ctx, c); err != nil {
		return nil, fail(span, err, "create campaign failed")
	}
	return c, nil
}

func (s *ResourceService) UpdateCampaign(ctx context.Context, actor Actor, id int64, in CampaignInput) (*models.Campaign, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "UpdateCampaign")
	defer span.End()

	if err := in.normalize(); err != nil {
		span.SetStatus(codes.Error, "invalid campaign")
		return nil, err
	}
	c, err := loadOwned[models.Campaign](ctx, s.res.Campaigns, actor, id)
	if err != nil {
		return nil, fail(span, err, "campaign lookup failed")
	}
	if c.Status == models.StatusCompleted {
		span.SetStatus(codes.Error, "campaign completed")
		return nil, fmt.Errorf("%w: campaign is completed", pkgerrors.ErrInvalidTransition)
	}
	c.Name, c.Channel, c.Budget = in.Name, in.Channel, in.Budget
	c.StartsAt, c.EndsAt = in.StartsAt, in.EndsAt
	if err := s.res.Campaigns.Update(ctx, c); err != nil {
		return nil, fail(span, err, "update campaign failed")
	}
	return c, nil
}

func (s *ResourceService) SetCampaignStatus(ctx context.Context, actor Actor, id int64, status models.Status) (*models.Campaign, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "SetCampaignStatus")
	defer span.End()

	c, err := transition[models.Campaign](ctx, s.res.Campaigns, actor, id, status)
	if err != nil {
		return nil, fail(span, err, "campaign status change failed")
	}
	return c, nil
}

func (s *ResourceService) ListCampaigns(ctx context.Context, actor Actor, status models.Status) ([]models.Campaign, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ListCampaigns")
	defer span.End()

	out, err := listFor(ctx, s.res.Campaigns, actor, status)
	if err != nil {
		return nil, fail(span, err, "list campaigns failed")
	}
	return out, nil
}

// Subscriptions

func (s *ResourceService) Plans() []Plan {
	plans := make([]Plan, 0, len(s.cfg.Plans))
	for name, price := range s.cfg.Plans {
		plans = append(plans, Plan{Name: name, Price: price})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Price.LessThan(plans[j].Price) })
	return plans
}

// Subscribe charges the plan price and records the subscription.
func (s *ResourceService) Subscribe(ctx context.Context, userID int64, plan string) (*models.Subscription, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "Subscribe")
	defer span.End()

	plan = strings.ToLower(strings.TrimSpace(plan))
	price, ok := s.cfg.Plans[plan]
	if !ok {
		span.SetStatus(codes.Error, "unknown plan")
		return nil, pkgerrors.Invalid("unknown plan %q", plan)
	}

	reference := "subscription:" + uuid.NewString()
	if _, err := s.wallet.Charge(ctx, userID, models.TypeSubscription, price, reference, "Subscription "+plan); err != nil {
		return nil, fail(span, err, "subscription charge failed")
	}

	sub := &models.Subscription{
		UserID:    userID,
		Plan:      plan,
		Price:     price,
		Status:    models.StatusActive,
		ExpiresAt: time.Now().UTC().Add(s.cfg.SubscriptionPeriod),
	}
	if err := s.res.Subscriptions.Create(ctx, sub); err != nil {
		slog.Error("subscription not stored after charge, refunding", "user_id", userID, "reference", reference, "error", err)
		if _, rerr := s.wallet.Refund(ctx, userID, price, reference+":refund", "Refund for failed subscription "+plan); rerr != nil {
			slog.Error("failed to refund subscription", "user_id", userID, "reference", reference, "error", rerr)
		}
		return nil, fail(span, err, "create subscription failed")
	}

	slog.Info("subscription purchased", "subscription_id", sub.ID, "user_id", userID, "plan", plan, "price", price.String())
	return sub, nil
}

func (s *ResourceService) ListSubscriptions(ctx context.Context, actor Actor) ([]models.Subscription, error) {
	tracer := otel.Tracer("resource-service")
	ctx, span := tracer.Start(ctx, "ListSubscriptions")
	defer span.End()

	out, err := listFor(ctx, s.res.Subscriptions, actor, "")
	if err != nil {
		return nil, fail(span, err, "list subscriptions failed")
	}
	return out, nil
}
