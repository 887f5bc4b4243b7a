package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

// ProductService reads the product catalog and records offer showings and
// clicks, the inputs of follow-up eligibility.
type ProductService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s *ProductService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// ActiveByType returns active products of type t by sort order.
func (s *ProductService) ActiveByType(ctx context.Context, t domain.ProductType) ([]domain.Product, error) {
	out, err := repo.ListActiveProductsByType(ctx, s.DB, t)
	if err != nil {
		return nil, storeErr("list products", err)
	}
	return out, nil
}

// ActiveOffer returns the active offer of productID.
func (s *ProductService) ActiveOffer(ctx context.Context, productID string) (*domain.ProductOffer, error) {
	o, err := repo.ActiveOfferForProduct(ctx, s.DB, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoActiveOffer
	}
	if err != nil {
		return nil, storeErr("get active offer", err)
	}
	return o, nil
}

// TripwireOffer returns the active offer of the first active tripwire product.
func (s *ProductService) TripwireOffer(ctx context.Context) (*domain.ProductOffer, error) {
	ps, err := s.ActiveByType(ctx, domain.ProductTripwire)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		o, err := s.ActiveOffer(ctx, p.ID)
		if errors.Is(err, ErrNoActiveOffer) {
			continue
		}
		return o, err
	}
	return nil, ErrNoActiveOffer
}

// Show records that offerID was presented to userID now.
func (s *ProductService) Show(ctx context.Context, userID, offerID string) (*domain.UserProductOffer, error) {
	if err := s.ensureRefs(ctx, userID, offerID); err != nil {
		return nil, err
	}
	rec, err := repo.CreateShowing(ctx, s.DB, userID, offerID, s.now())
	if err != nil {
		return nil, storeErr("record showing", err)
	}
	return rec, nil
}

// Click marks the latest showing of offerID to userID as clicked, which
// removes the pair from follow-up eligibility.
func (s *ProductService) Click(ctx context.Context, userID, offerID string) error {
	if err := s.ensureRefs(ctx, userID, offerID); err != nil {
		return err
	}
	err := repo.MarkLatestShowingClicked(ctx, s.DB, userID, offerID, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotShown
	}
	if err != nil {
		return storeErr("record click", err)
	}
	return nil
}

// OfferStats is the show/click funnel of one offer.
type OfferStats struct {
	OfferID    string  `json:"offer_id"`
	Shows      int64   `json:"shows"`
	Clicks     int64   `json:"clicks"`
	Conversion float64 `json:"conversion"`
}

// OfferStats returns shows, clicks and click-through ratio of offerID.
func (s *ProductService) OfferStats(ctx context.Context, offerID string) (*OfferStats, error) {
	if _, err := repo.GetOffer(ctx, s.DB, offerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, storeErr("get offer", err)
	}
	shows, clicks, err := repo.OfferShowStats(ctx, s.DB, offerID)
	if err != nil {
		return nil, storeErr("offer stats", err)
	}
	st := &OfferStats{OfferID: offerID, Shows: shows, Clicks: clicks}
	if shows > 0 {
		st.Conversion = float64(clicks) / float64(shows)
	}
	return st, nil
}

func (s *ProductService) ensureRefs(ctx context.Context, userID, offerID string) error {
	if _, err := repo.GetUser(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return storeErr("get user", err)
	}
	if _, err := repo.GetOffer(ctx, s.DB, offerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOfferNotFound
		}
		return storeErr("get offer", err)
	}
	return nil
}
