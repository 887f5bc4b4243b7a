// Package handlers exposes the lead-nurturing services over HTTP.
//
// Handlers are transport-thin: they bind and validate input, call application
// services through the narrow contracts below, and translate results and
// sentinel errors into responses.
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// UserService registers bot users and manages their status.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*domain.User, bool, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	ByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
}

// LeadMagnetService issues lead magnets and manages the catalog.
type LeadMagnetService interface {
	Issue(ctx context.Context, userID string) (*domain.LeadMagnet, error)
	UserLeadMagnets(ctx context.Context, userID string) ([]domain.LeadMagnet, error)

	ListActive(ctx context.Context) ([]domain.LeadMagnet, error)
	ListAll(ctx context.Context) ([]domain.LeadMagnet, error)
	ListByType(ctx context.Context, t domain.LeadMagnetType) ([]domain.LeadMagnet, error)
	Get(ctx context.Context, id string) (*domain.LeadMagnet, error)
	Create(ctx context.Context, in services.LeadMagnetCreate) (*domain.LeadMagnet, error)
	Update(ctx context.Context, id string, in services.LeadMagnetUpdate) (*domain.LeadMagnet, error)
	Toggle(ctx context.Context, id string) (*domain.LeadMagnet, error)
	Delete(ctx context.Context, id string) error

	Stats(ctx context.Context) (*services.LeadMagnetStats, error)
	IssuedBetween(ctx context.Context, from, to time.Time, t domain.LeadMagnetType) (int64, error)
	// Catalog returns the row count and last update time, for ETags.
	Catalog(ctx context.Context) (int64, *time.Time, error)
}

// ProductService records offer showings and clicks.
type ProductService interface {
	ActiveByType(ctx context.Context, t domain.ProductType) ([]domain.Product, error)
	Show(ctx context.Context, userID, offerID string) (*domain.UserProductOffer, error)
	Click(ctx context.Context, userID, offerID string) error
	OfferStats(ctx context.Context, offerID string) (*services.OfferStats, error)
}

// FollowUpService reports users due a reminder.
type FollowUpService interface {
	Eligible(ctx context.Context, threshold time.Duration) ([]services.Candidate, error)
}

// WarmupService starts and stops warm-up sequences.
type WarmupService interface {
	Start(ctx context.Context, userID string) (*domain.UserWarmup, error)
	Stop(ctx context.Context, userID string) (bool, error)
	Stats(ctx context.Context) (*services.WarmupStats, error)
}

// MailingService manages broadcast mailings.
type MailingService interface {
	Create(ctx context.Context, in services.MailingCreate) (*domain.Mailing, error)
	Get(ctx context.Context, id string) (*domain.Mailing, error)
	List(ctx context.Context) ([]domain.Mailing, error)
	Update(ctx context.Context, id string, in services.MailingUpdate) (*domain.Mailing, error)
	Delete(ctx context.Context, id string) error
	Prepare(ctx context.Context, id string) (*domain.Mailing, error)
	Reset(ctx context.Context, id string) (*domain.Mailing, error)
	Stats(ctx context.Context, id string) (*services.MailingStats, error)
	UsersCount(ctx context.Context) (services.UsersCount, error)
}

// FAQService answers free-text questions.
type FAQService interface {
	Answer(ctx context.Context, query string, limit int) ([]services.FAQMatch, error)
}

// Jobs triggers delivery passes on demand; the scheduler's Runner implements
// it so manual runs are logged and counted like scheduled ones.
type Jobs interface {
	RunFollowUps(ctx context.Context, threshold time.Duration) (services.DeliveryReport, error)
	RunWarmups(ctx context.Context) (services.DeliveryReport, error)
	RunMailings(ctx context.Context) (services.DeliveryReport, error)
}

// IdempotencyStore persists the outcome of unsafe requests keyed by
// (subject, scope, key), see middleware.IdempotencySubject and
// middleware.IdempotencyScope.
type IdempotencyStore interface {
	Lookup(ctx context.Context, subject, scope, key string) (resourceID string, status int, found bool, err error)
	Save(ctx context.Context, subject, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers. Jobs and Idem are optional.
type Deps struct {
	Users     UserService
	Magnets   LeadMagnetService
	Products  ProductService
	FollowUps FollowUpService
	Warmups   WarmupService
	Mailings  MailingService
	FAQ       FAQService
	Jobs      Jobs
	Idem      IdempotencyStore

	// FollowUpThreshold is the default of ?hours on follow-up endpoints.
	FollowUpThreshold time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	users     UserService
	magnets   LeadMagnetService
	products  ProductService
	followups FollowUpService
	warmups   WarmupService
	mailings  MailingService
	faq       FAQService
	jobs      Jobs
	idem      IdempotencyStore

	threshold time.Duration
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	th := d.FollowUpThreshold
	if th <= 0 {
		th = services.DefaultFollowUpThreshold
	}
	return &Handlers{
		users:     d.Users,
		magnets:   d.Magnets,
		products:  d.Products,
		followups: d.FollowUps,
		warmups:   d.Warmups,
		mailings:  d.Mailings,
		faq:       d.FAQ,
		jobs:      d.Jobs,
		idem:      d.Idem,
		threshold: th,
	}
}
