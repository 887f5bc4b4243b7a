package domain

import "time"

// MailingStatus is the lifecycle state of a broadcast mailing:
// draft → scheduled → sending → completed, with failed for a pass that hit a
// store error. Reset returns a mailing to draft.
type MailingStatus string

const (
	MailingDraft     MailingStatus = "draft"
	MailingScheduled MailingStatus = "scheduled"
	MailingSending   MailingStatus = "sending"
	MailingCompleted MailingStatus = "completed"
	MailingFailed    MailingStatus = "failed"
)

// Mailing is a one-off HTML broadcast to every active user. The counters are
// refreshed from the recipient rows after each pass.
type Mailing struct {
	ID              string        `json:"id"               gorm:"type:char(36);primaryKey"`
	Name            string        `json:"name"             gorm:"type:varchar(255);not null"`
	MessageText     string        `json:"message_text"     gorm:"type:text;not null"`
	Status          MailingStatus `json:"status"           gorm:"type:varchar(16);not null;default:'draft';index;check:status IN ('draft','scheduled','sending','completed','failed')"`
	CreatedBy       string        `json:"created_by"       gorm:"type:varchar(64)"`
	TotalRecipients int           `json:"total_recipients" gorm:"not null;default:0"`
	SentCount       int           `json:"sent_count"       gorm:"not null;default:0"`
	FailedCount     int           `json:"failed_count"     gorm:"not null;default:0"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Mailing.
func (Mailing) TableName() string { return "mailings" }

// RecipientStatus is the delivery state of one mailing recipient.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSending   RecipientStatus = "sending"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientFailed    RecipientStatus = "failed"
)

// MailingRecipient is the per-user delivery row of a mailing. A row leaves
// pending exactly once, so a recipient is messaged at most once per mailing;
// a row stuck in sending after a crash is never re-sent.
type MailingRecipient struct {
	ID           string          `json:"id"            gorm:"type:char(36);primaryKey"`
	MailingID    string          `json:"mailing_id"    gorm:"type:char(36);not null;uniqueIndex:ux_mailing_user,priority:1;index:idx_mr_mailing_status,priority:1"`
	UserID       string          `json:"user_id"       gorm:"type:char(36);not null;uniqueIndex:ux_mailing_user,priority:2"`
	Status       RecipientStatus `json:"status"        gorm:"type:varchar(16);not null;default:'pending';index:idx_mr_mailing_status,priority:2"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Mailing Mailing `json:"-" gorm:"foreignKey:MailingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User    User    `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MailingRecipient.
func (MailingRecipient) TableName() string { return "mailing_recipients" }
