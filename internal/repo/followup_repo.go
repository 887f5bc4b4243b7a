// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the follow-up eligibility query and the
// claim/mark/release writes of the delivery loop.
//
// A UserFollowUp row is the per-pair delivery record. Its lifecycle is
//
//	(no row) --claim--> pending --mark--> sent
//	                       \--release--> (no row)
//
// A pending row whose claimed_at is older than the stale cutoff belongs to a
// run that crashed between claim and mark; it may be claimed again.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// FollowUpCandidate is one eligible (user, offer, showing) triple.
type FollowUpCandidate struct {
	ShowingID  string
	UserID     string
	TelegramID int64
	OfferID    string
	ProductID  string
	ShownAt    time.Time
}

const followUpCandidatesSQL = `
SELECT upo.id AS showing_id,
       upo.user_id AS user_id,
       u.telegram_id AS telegram_id,
       upo.offer_id AS offer_id,
       po.product_id AS product_id,
       upo.shown_at AS shown_at
FROM user_product_offers AS upo
JOIN users AS u ON u.id = upo.user_id
JOIN product_offers AS po ON po.id = upo.offer_id
JOIN products AS p ON p.id = po.product_id
WHERE p.type = @product_type
  AND u.status = @user_status
  AND upo.shown_at <= @cutoff
  AND upo.clicked = @not_clicked
  AND NOT EXISTS (
      SELECT 1 FROM user_product_offers AS c
      WHERE c.user_id = upo.user_id AND c.offer_id = upo.offer_id AND c.clicked = @clicked)
  AND NOT EXISTS (
      SELECT 1 FROM user_followups AS f
      WHERE f.user_id = upo.user_id AND f.offer_id = upo.offer_id
        AND (f.status = @sent OR f.claimed_at > @stale_before))
ORDER BY upo.shown_at ASC, upo.id ASC`

// FindFollowUpCandidates returns tripwire showings at or before cutoff, to
// active users, never clicked, with no sent or live pending follow-up. Rows
// come back ordered by shown_at and are reduced to the earliest showing per
// (user, offer) pair.
//
// The pair reduction happens here rather than with MIN()/GROUP BY because
// SQLite returns aggregated datetimes as TEXT.
func FindFollowUpCandidates(ctx context.Context, db *gorm.DB, cutoff, staleBefore time.Time) ([]FollowUpCandidate, error) {
	var rows []FollowUpCandidate
	err := db.WithContext(ctx).Raw(followUpCandidatesSQL, map[string]any{
		"product_type": domain.ProductTripwire,
		"user_status":  domain.UserActive,
		"cutoff":       cutoff.UTC(),
		"not_clicked":  false,
		"clicked":      true,
		"sent":         domain.FollowUpSent,
		"stale_before": staleBefore.UTC(),
	}).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	type pair struct{ user, offer string }
	seen := make(map[pair]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := pair{r.UserID, r.OfferID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// ClaimFollowUp takes ownership of the (userID, offerID) pair before a send.
// It inserts a pending row; if a row already exists, it takes over only a
// pending row claimed at or before staleBefore. It reports whether the claim
// was won.
func ClaimFollowUp(ctx context.Context, db *gorm.DB, userID, offerID string, now, staleBefore time.Time) (bool, error) {
	now = now.UTC()
	rec := &domain.UserFollowUp{
		ID:        uuid.NewString(),
		UserID:    userID,
		OfferID:   offerID,
		Status:    domain.FollowUpPending,
		ClaimedAt: now,
	}
	err := db.WithContext(ctx).Omit("User", "Offer").Create(rec).Error
	if err == nil {
		return true, nil
	}
	if !IsUniqueViolation(err) {
		return false, err
	}

	res := db.WithContext(ctx).
		Model(&domain.UserFollowUp{}).
		Where("user_id = ? AND offer_id = ? AND status = ? AND claimed_at <= ?",
			userID, offerID, domain.FollowUpPending, staleBefore.UTC()).
		Update("claimed_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFollowUpSent moves the pending claim for the pair to sent. It returns
// ErrNotFound if no pending row exists.
func MarkFollowUpSent(ctx context.Context, db *gorm.DB, userID, offerID string, sentAt time.Time) error {
	sentAt = sentAt.UTC()
	res := db.WithContext(ctx).
		Model(&domain.UserFollowUp{}).
		Where("user_id = ? AND offer_id = ? AND status = ?", userID, offerID, domain.FollowUpPending).
		Updates(map[string]any{"status": domain.FollowUpSent, "sent_at": sentAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReleaseFollowUp deletes the pending claim for the pair so it stays
// eligible. Sent rows are never touched.
func ReleaseFollowUp(ctx context.Context, db *gorm.DB, userID, offerID string) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND offer_id = ? AND status = ?", userID, offerID, domain.FollowUpPending).
		Delete(&domain.UserFollowUp{}).Error
}

// GetFollowUp returns the delivery record for the pair, or ErrNotFound.
func GetFollowUp(ctx context.Context, db *gorm.DB, userID, offerID string) (*domain.UserFollowUp, error) {
	var f domain.UserFollowUp
	if err := db.WithContext(ctx).Where("user_id = ? AND offer_id = ?", userID, offerID).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}
