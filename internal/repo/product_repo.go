// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for products,
// offers and offer showings.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// CreateProduct inserts p, assigning a UUID when ID is empty.
func CreateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) (*domain.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetProductByName fetches the first product named name.
func GetProductByName(ctx context.Context, db *gorm.DB, name string) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("name = ?", name).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActiveProductsByType returns active products of type t ordered by
// sort_order.
func ListActiveProductsByType(ctx context.Context, db *gorm.DB, t domain.ProductType) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Where("type = ? AND is_active = ?", t, true).
		Order("sort_order ASC").
		Find(&out).Error
	return out, err
}

// CreateOffer inserts o, assigning a UUID when ID is empty.
func CreateOffer(ctx context.Context, db *gorm.DB, o *domain.ProductOffer) (*domain.ProductOffer, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Omit("Product").Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

// GetOffer fetches an offer by id with its product preloaded.
func GetOffer(ctx context.Context, db *gorm.DB, id string) (*domain.ProductOffer, error) {
	var o domain.ProductOffer
	if err := db.WithContext(ctx).Preload("Product").Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ActiveOfferForProduct returns the oldest active offer of productID.
func ActiveOfferForProduct(ctx context.Context, db *gorm.DB, productID string) (*domain.ProductOffer, error) {
	var o domain.ProductOffer
	err := db.WithContext(ctx).
		Preload("Product").
		Where("product_id = ? AND is_active = ?", productID, true).
		Order("created_at ASC").
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateShowing records that offerID was shown to userID at shownAt.
func CreateShowing(ctx context.Context, db *gorm.DB, userID, offerID string, shownAt time.Time) (*domain.UserProductOffer, error) {
	s := &domain.UserProductOffer{
		ID:      uuid.NewString(),
		UserID:  userID,
		OfferID: offerID,
		ShownAt: shownAt.UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// MarkLatestShowingClicked flags the most recent showing of offerID to
// userID as clicked. It returns ErrNotFound when the user never saw the offer.
func MarkLatestShowingClicked(ctx context.Context, db *gorm.DB, userID, offerID string, at time.Time) error {
	var s domain.UserProductOffer
	err := db.WithContext(ctx).
		Where("user_id = ? AND offer_id = ?", userID, offerID).
		Order("shown_at DESC").
		First(&s).Error
	if err != nil {
		return err
	}
	at = at.UTC()
	return db.WithContext(ctx).
		Model(&domain.UserProductOffer{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{"clicked": true, "clicked_at": at}).Error
}

// OfferShowStats returns how many times offerID was shown and how many of
// those showings were clicked.
func OfferShowStats(ctx context.Context, db *gorm.DB, offerID string) (shows, clicks int64, err error) {
	if err = db.WithContext(ctx).Model(&domain.UserProductOffer{}).
		Where("offer_id = ?", offerID).Count(&shows).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&domain.UserProductOffer{}).
		Where("offer_id = ? AND clicked = ?", offerID, true).Count(&clicks).Error; err != nil {
		return 0, 0, err
	}
	return shows, clicks, nil
}
