package domain

import "time"

// FollowUpStatus is the delivery state of a follow-up reminder.
type FollowUpStatus string

const (
	// FollowUpPending marks a claim taken before the send is attempted.
	FollowUpPending FollowUpStatus = "pending"
	// FollowUpSent marks a confirmed send.
	FollowUpSent FollowUpStatus = "sent"
)

// UserFollowUp records that a follow-up reminder for (user, offer) has been
// claimed or sent. At most one row exists per pair (enforced by unique index).
//
// Fields:
//   - ClaimedAt: when the delivery run took ownership of the pair.
//   - SentAt: set once the messenger confirmed delivery.
type UserFollowUp struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:char(36);not null;uniqueIndex:ux_followup_user_offer,priority:1"`
	OfferID   string         `json:"offer_id"   gorm:"type:char(36);not null;uniqueIndex:ux_followup_user_offer,priority:2"`
	Status    FollowUpStatus `json:"status"     gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','sent')"`
	ClaimedAt time.Time      `json:"claimed_at" gorm:"not null"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	User  User         `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Offer ProductOffer `json:"-" gorm:"foreignKey:OfferID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserFollowUp.
func (UserFollowUp) TableName() string { return "user_followups" }
