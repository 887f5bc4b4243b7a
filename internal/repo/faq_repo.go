package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// CreateFAQEntry inserts e, assigning a UUID when ID is empty.
func CreateFAQEntry(ctx context.Context, db *gorm.DB, e *domain.FAQEntry) (*domain.FAQEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// ListActiveFAQ returns active FAQ entries in display order.
func ListActiveFAQ(ctx context.Context, db *gorm.DB) ([]domain.FAQEntry, error) {
	var out []domain.FAQEntry
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

// FAQQuestionExists reports whether an entry with the exact question exists.
func FAQQuestionExists(ctx context.Context, db *gorm.DB, question string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.FAQEntry{}).Where("question = ?", question).Count(&n).Error
	return n > 0, err
}
