package domain

import "time"

// FAQEntry is a canned answer matched against free-text user questions.
// Keywords is a comma-separated list that widens the match beyond Question.
type FAQEntry struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Question  string    `json:"question"   gorm:"type:text;not null"`
	Keywords  string    `json:"keywords"   gorm:"type:text"`
	Answer    string    `json:"answer"     gorm:"type:text;not null"`
	IsActive  bool      `json:"is_active"  gorm:"not null"`
	SortOrder int       `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for FAQEntry.
func (FAQEntry) TableName() string { return "faq_entries" }
