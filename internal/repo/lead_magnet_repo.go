// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the lead
// magnet catalog and its issuance log.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// CreateLeadMagnet inserts lm, assigning a UUID when ID is empty.
func CreateLeadMagnet(ctx context.Context, db *gorm.DB, lm *domain.LeadMagnet) (*domain.LeadMagnet, error) {
	if lm.ID == "" {
		lm.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(lm).Error; err != nil {
		return nil, err
	}
	return lm, nil
}

// GetLeadMagnet fetches a lead magnet by exact id.
func GetLeadMagnet(ctx context.Context, db *gorm.DB, id string) (*domain.LeadMagnet, error) {
	var lm domain.LeadMagnet
	if err := db.WithContext(ctx).Where("id = ?", id).First(&lm).Error; err != nil {
		return nil, err
	}
	return &lm, nil
}

// FindLeadMagnetsByPrefix returns up to limit lead magnets whose id starts
// with prefix. The caller must ensure prefix carries no LIKE wildcards.
func FindLeadMagnetsByPrefix(ctx context.Context, db *gorm.DB, prefix string, limit int) ([]domain.LeadMagnet, error) {
	var out []domain.LeadMagnet
	err := db.WithContext(ctx).
		Where("id LIKE ?", prefix+"%").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetLeadMagnetByName fetches the first lead magnet with the given name.
func GetLeadMagnetByName(ctx context.Context, db *gorm.DB, name string) (*domain.LeadMagnet, error) {
	var lm domain.LeadMagnet
	if err := db.WithContext(ctx).Where("name = ?", name).Order("created_at ASC").First(&lm).Error; err != nil {
		return nil, err
	}
	return &lm, nil
}

// ListActiveLeadMagnets returns active lead magnets ordered by sort_order.
func ListActiveLeadMagnets(ctx context.Context, db *gorm.DB) ([]domain.LeadMagnet, error) {
	var out []domain.LeadMagnet
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

// FirstActiveLeadMagnet returns the active lead magnet with the lowest
// sort_order, or ErrNotFound when none is active.
func FirstActiveLeadMagnet(ctx context.Context, db *gorm.DB) (*domain.LeadMagnet, error) {
	var lm domain.LeadMagnet
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, created_at ASC").
		First(&lm).Error
	if err != nil {
		return nil, err
	}
	return &lm, nil
}

// ListLeadMagnets returns the whole catalog ordered by sort_order, then
// creation time.
func ListLeadMagnets(ctx context.Context, db *gorm.DB) ([]domain.LeadMagnet, error) {
	var out []domain.LeadMagnet
	err := db.WithContext(ctx).
		Order("sort_order ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

// ListLeadMagnetsByType returns active lead magnets of type t.
func ListLeadMagnetsByType(ctx context.Context, db *gorm.DB, t domain.LeadMagnetType) ([]domain.LeadMagnet, error) {
	var out []domain.LeadMagnet
	err := db.WithContext(ctx).
		Where("type = ? AND is_active = ?", t, true).
		Order("sort_order ASC").
		Find(&out).Error
	return out, err
}

// UpdateLeadMagnetFields applies the column/value pairs in fields to the
// lead magnet identified by id. It returns ErrNotFound if no row matched.
func UpdateLeadMagnetFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.LeadMagnet{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ToggleLeadMagnet flips is_active in place. It returns ErrNotFound if no
// row matched.
func ToggleLeadMagnet(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.LeadMagnet{}).
		Where("id = ?", id).
		Update("is_active", gorm.Expr("NOT is_active"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteLeadMagnet removes the issuance rows of the lead magnet and then
// the lead magnet itself. Run it inside a transaction to make both deletes
// atomic. It returns ErrNotFound if the lead magnet did not exist.
func DeleteLeadMagnet(ctx context.Context, db *gorm.DB, id string) error {
	if err := db.WithContext(ctx).Where("lead_magnet_id = ?", id).Delete(&domain.UserLeadMagnet{}).Error; err != nil {
		return err
	}
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.LeadMagnet{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetUserLeadMagnet returns the issuance row for userID, or ErrNotFound.
func GetUserLeadMagnet(ctx context.Context, db *gorm.DB, userID string) (*domain.UserLeadMagnet, error) {
	var ulm domain.UserLeadMagnet
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&ulm).Error; err != nil {
		return nil, err
	}
	return &ulm, nil
}

// CreateUserLeadMagnet records an issuance. A unique violation on user_id
// is returned as-is; see IsUniqueViolation.
func CreateUserLeadMagnet(ctx context.Context, db *gorm.DB, ulm *domain.UserLeadMagnet) error {
	if ulm.ID == "" {
		ulm.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(ulm).Error
}

// ListUserLeadMagnets returns the lead magnets issued to userID, most
// recent first.
func ListUserLeadMagnets(ctx context.Context, db *gorm.DB, userID string) ([]domain.LeadMagnet, error) {
	var out []domain.LeadMagnet
	err := db.WithContext(ctx).
		Table("lead_magnets AS lm").
		Select("lm.*").
		Joins("JOIN user_lead_magnets AS ulm ON ulm.lead_magnet_id = lm.id").
		Where("ulm.user_id = ?", userID).
		Order("ulm.issued_at DESC").
		Scan(&out).Error
	return out, err
}
