// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for broadcast
// mailings and their per-user recipient rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// recipientBatch bounds the rows per INSERT when a mailing is prepared.
const recipientBatch = 500

// CreateMailing inserts m, assigning a UUID when ID is empty.
func CreateMailing(ctx context.Context, db *gorm.DB, m *domain.Mailing) (*domain.Mailing, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMailing fetches a mailing by exact id.
func GetMailing(ctx context.Context, db *gorm.DB, id string) (*domain.Mailing, error) {
	var m domain.Mailing
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMailingsByPrefix returns up to limit mailings whose id starts with
// prefix. The caller must ensure prefix carries no LIKE wildcards.
func FindMailingsByPrefix(ctx context.Context, db *gorm.DB, prefix string, limit int) ([]domain.Mailing, error) {
	var out []domain.Mailing
	err := db.WithContext(ctx).
		Where("id LIKE ?", prefix+"%").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListMailings returns all mailings, newest first.
func ListMailings(ctx context.Context, db *gorm.DB) ([]domain.Mailing, error) {
	var out []domain.Mailing
	err := db.WithContext(ctx).Order("created_at DESC, id ASC").Find(&out).Error
	return out, err
}

// ListMailingsByStatus returns mailings in any of statuses, oldest first.
func ListMailingsByStatus(ctx context.Context, db *gorm.DB, statuses ...domain.MailingStatus) ([]domain.Mailing, error) {
	var out []domain.Mailing
	err := db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// UpdateMailing applies fields to the mailing identified by id. If no rows
// are affected it returns ErrNotFound.
func UpdateMailing(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.Mailing{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionMailing moves the mailing from one of from to status to,
// applying extra fields in the same statement. It reports whether the row
// was in an allowed state.
func TransitionMailing(ctx context.Context, db *gorm.DB, id string, from []domain.MailingStatus, to domain.MailingStatus, extra map[string]any) (bool, error) {
	fields := map[string]any{"status": to}
	for k, v := range extra {
		fields[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Mailing{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteMailing removes the mailing and its recipient rows. If the mailing
// does not exist it returns ErrNotFound.
func DeleteMailing(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mailing_id = ?", id).Delete(&domain.MailingRecipient{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Mailing{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CreateMailingRecipients adds one pending row per active user and returns
// the number of rows written. The unique (mailing_id, user_id) index rejects
// a second call on the same mailing.
func CreateMailingRecipients(ctx context.Context, db *gorm.DB, mailingID string) (int, error) {
	var userIDs []string
	if err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("status = ?", domain.UserActive).
		Order("created_at ASC, id ASC").
		Pluck("id", &userIDs).Error; err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}
	rows := make([]domain.MailingRecipient, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, domain.MailingRecipient{
			ID:        uuid.NewString(),
			MailingID: mailingID,
			UserID:    uid,
			Status:    domain.RecipientPending,
		})
	}
	if err := db.WithContext(ctx).Omit("Mailing", "User").CreateInBatches(rows, recipientBatch).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

// DeleteMailingRecipients removes every recipient row of the mailing.
func DeleteMailingRecipients(ctx context.Context, db *gorm.DB, mailingID string) error {
	return db.WithContext(ctx).Where("mailing_id = ?", mailingID).Delete(&domain.MailingRecipient{}).Error
}

// MailingTarget is a pending recipient joined with its messenger chat id.
type MailingTarget struct {
	RecipientID string
	UserID      string
	TelegramID  int64
}

// ListPendingRecipients returns pending recipients of the mailing in user
// registration order.
func ListPendingRecipients(ctx context.Context, db *gorm.DB, mailingID string) ([]MailingTarget, error) {
	var out []MailingTarget
	err := db.WithContext(ctx).
		Table("mailing_recipients AS mr").
		Select("mr.id AS recipient_id, mr.user_id AS user_id, u.telegram_id AS telegram_id").
		Joins("JOIN users u ON u.id = mr.user_id").
		Where("mr.mailing_id = ? AND mr.status = ?", mailingID, domain.RecipientPending).
		Order("u.created_at ASC, u.id ASC").
		Scan(&out).Error
	return out, err
}

// ClaimRecipient moves a pending recipient to sending. It reports whether
// this caller won the row.
func ClaimRecipient(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.MailingRecipient{}).
		Where("id = ? AND status = ?", id, domain.RecipientPending).
		Update("status", domain.RecipientSending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkRecipientDelivered records a confirmed send.
func MarkRecipientDelivered(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.MailingRecipient{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": domain.RecipientDelivered, "sent_at": at.UTC(), "error_message": ""}).Error
}

// MarkRecipientFailed records a rejected send with its reason.
func MarkRecipientFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	return db.WithContext(ctx).
		Model(&domain.MailingRecipient{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": domain.RecipientFailed, "error_message": reason}).Error
}

// CountRecipientsByStatus returns the number of recipient rows per status.
// Statuses with no rows are absent from the map.
func CountRecipientsByStatus(ctx context.Context, db *gorm.DB, mailingID string) (map[domain.RecipientStatus]int64, error) {
	var rows []struct {
		Status domain.RecipientStatus
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.MailingRecipient{}).
		Select("status, COUNT(*) AS n").
		Where("mailing_id = ?", mailingID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.RecipientStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// CountUsers returns the total number of users and how many are active.
func CountUsers(ctx context.Context, db *gorm.DB) (total, active int64, err error) {
	if err = db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&domain.User{}).Where("status = ?", domain.UserActive).Count(&active).Error; err != nil {
		return 0, 0, err
	}
	return total, active, nil
}
