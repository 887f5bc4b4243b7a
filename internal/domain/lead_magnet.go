package domain

import "time"

// LeadMagnetType is the delivery format of a lead magnet.
type LeadMagnetType string

const (
	LeadMagnetPDF         LeadMagnetType = "pdf"
	LeadMagnetGoogleSheet LeadMagnetType = "google_sheet"
	LeadMagnetLink        LeadMagnetType = "link"
	LeadMagnetText        LeadMagnetType = "text"
)

// Valid reports whether t is a known lead magnet type.
func (t LeadMagnetType) Valid() bool {
	switch t {
	case LeadMagnetPDF, LeadMagnetGoogleSheet, LeadMagnetLink, LeadMagnetText:
		return true
	}
	return false
}

// LeadMagnet is a free gift handed to a user on first contact.
//
// Fields:
//   - ID: UUID primary key (char(36)); the first 8 characters act as a short id.
//   - Type: pdf, google_sheet, link or text.
//   - FileURL: download or sheet URL for non-text types.
//   - MessageText: body sent along with (or instead of) the file.
//   - IsActive / SortOrder: catalog visibility and ordering.
type LeadMagnet struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	Name        string         `json:"name"         gorm:"type:varchar(255);not null"`
	Description string         `json:"description"  gorm:"type:text"`
	Type        LeadMagnetType `json:"type"         gorm:"type:varchar(32);not null;check:type IN ('pdf','google_sheet','link','text')"`
	FileURL     string         `json:"file_url"     gorm:"type:varchar(500)"`
	MessageText string         `json:"message_text" gorm:"type:text"`
	IsActive    bool           `json:"is_active"    gorm:"not null;index:idx_lm_active_sort,priority:1"`
	SortOrder   int            `json:"sort_order"   gorm:"not null;default:0;index:idx_lm_active_sort,priority:2"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName returns the database table name for LeadMagnet.
func (LeadMagnet) TableName() string { return "lead_magnets" }

// UserLeadMagnet records the single gift issued to a user. The unique index
// on user_id guarantees a user receives at most one lead magnet.
type UserLeadMagnet struct {
	ID           string    `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id"        gorm:"type:char(36);not null;uniqueIndex:ux_user_lead_magnet"`
	LeadMagnetID string    `json:"lead_magnet_id" gorm:"type:char(36);not null;index"`
	IssuedAt     time.Time `json:"issued_at"      gorm:"not null;index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	User       User       `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	LeadMagnet LeadMagnet `json:"-" gorm:"foreignKey:LeadMagnetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserLeadMagnet.
func (UserLeadMagnet) TableName() string { return "user_lead_magnets" }
