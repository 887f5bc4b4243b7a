// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) and catalog statistics.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// LeadMagnetsStats returns the number of lead magnets and the greatest
// UpdatedAt among them. When the catalog is empty, the count is 0 and
// maxUpdatedAt is nil.
func LeadMagnetsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.LeadMagnet{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MagnetIssueCount is the number of issuances of one lead magnet.
type MagnetIssueCount struct {
	ID     string
	Name   string
	Issued int64
}

// IssuanceTotals returns the total number of issued lead magnets and the
// number of distinct recipients.
func IssuanceTotals(ctx context.Context, db *gorm.DB) (total, uniqueUsers int64, err error) {
	q := db.WithContext(ctx).Model(&domain.UserLeadMagnet{})
	if err = q.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&domain.UserLeadMagnet{}).Distinct("user_id").Count(&uniqueUsers).Error; err != nil {
		return 0, 0, err
	}
	return total, uniqueUsers, nil
}

// IssuedPerActiveMagnet returns issuance counts for every active lead magnet,
// including those never issued, in catalog order.
func IssuedPerActiveMagnet(ctx context.Context, db *gorm.DB) ([]MagnetIssueCount, error) {
	var out []MagnetIssueCount
	err := db.WithContext(ctx).
		Table("lead_magnets AS lm").
		Select("lm.id AS id, lm.name AS name, COUNT(ulm.id) AS issued").
		Joins("LEFT JOIN user_lead_magnets AS ulm ON ulm.lead_magnet_id = lm.id").
		Where("lm.is_active = ?", true).
		Group("lm.id, lm.name, lm.sort_order").
		Order("lm.sort_order ASC").
		Scan(&out).Error
	return out, err
}

// CountIssuedBetween counts issuances with from <= issued_at < to. When
// magnetType is non-empty only magnets of that type are counted.
func CountIssuedBetween(ctx context.Context, db *gorm.DB, from, to time.Time, magnetType domain.LeadMagnetType) (int64, error) {
	q := db.WithContext(ctx).
		Table("user_lead_magnets AS ulm").
		Where("ulm.issued_at >= ? AND ulm.issued_at < ?", from, to)
	if magnetType != "" {
		q = q.Joins("JOIN lead_magnets AS lm ON lm.id = ulm.lead_magnet_id").
			Where("lm.type = ?", magnetType)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
