package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

// UserService registers bot users and manages their lifecycle status.
type UserService struct {
	DB *gorm.DB
}

// RegisterInput carries the profile reported by the messenger on contact.
type RegisterInput struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// Register returns the user with in.TelegramID, creating it as active on
// first contact. created reports whether a row was inserted. A concurrent
// registration of the same id resolves to the row that won the insert.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (u *domain.User, created bool, err error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Register",
		trace.WithAttributes(attribute.Int64("user.telegram_id", in.TelegramID)))
	defer span.End()

	if in.TelegramID == 0 {
		return nil, false, ErrInvalidUser
	}
	existing, err := repo.GetUserByTelegramID(ctx, s.DB, in.TelegramID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, storeErr("get user", err)
	}

	u, err = repo.CreateUser(ctx, s.DB, &domain.User{
		TelegramID: in.TelegramID,
		Username:   strings.TrimSpace(in.Username),
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Status:     domain.UserActive,
	})
	if err != nil {
		if repo.IsUniqueViolation(err) {
			again, gerr := repo.GetUserByTelegramID(ctx, s.DB, in.TelegramID)
			if gerr != nil {
				return nil, false, storeErr("get user", gerr)
			}
			return again, false, nil
		}
		return nil, false, storeErr("create user", err)
	}
	return u, true, nil
}

// Get returns the user by id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return u, nil
}

// ByTelegramID returns the user by messenger id.
func (s *UserService) ByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := repo.GetUserByTelegramID(ctx, s.DB, telegramID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return u, nil
}

// SetStatus changes the lifecycle status of the user.
func (s *UserService) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	err := repo.UpdateUserStatus(ctx, s.DB, id, status)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return storeErr("update user status", err)
	}
	return nil
}
