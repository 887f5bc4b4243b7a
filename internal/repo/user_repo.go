// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateUser(ctx, db, u) -> *domain.User, error
//     Inserts a new User row with UUID primary key.
//
//   - GetUser(ctx, db, id) -> *domain.User, error
//     Fetches a user by primary key, or ErrNotFound.
//
//   - GetUserByTelegramID(ctx, db, telegramID) -> *domain.User, error
//     Fetches a user by messenger id, or ErrNotFound.
//
//   - UpdateUserStatus(ctx, db, id, status) -> error
//     Sets the lifecycle status. Returns ErrNotFound if no row matched.
//
// Usage:
//
//	u, err := repo.GetUserByTelegramID(ctx, db, 42)
//	if errors.Is(err, repo.ErrNotFound) {
//	    // first contact
//	} else if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts u, assigning a UUID when ID is empty.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by primary key.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByTelegramID fetches a user by messenger recipient id.
func GetUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserStatus sets status on the user identified by id. If no rows are
// affected it returns ErrNotFound.
func UpdateUserStatus(ctx context.Context, db *gorm.DB, id string, status domain.UserStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
