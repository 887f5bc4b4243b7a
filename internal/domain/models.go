// Package domain defines the persistence models for the lead-nurturing
// funnel: users, the product catalog, offer showings, follow-up reminders,
// lead magnets, and warm-up sequences. These types are mapped with GORM and
// form the core data layer of the bot backend.
package domain

import "time"

// UserStatus is the lifecycle state of a bot user.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
	UserBanned   UserStatus = "banned"
	UserPending  UserStatus = "pending"
)

// Valid reports whether s is a known user status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserInactive, UserBanned, UserPending:
		return true
	}
	return false
}

// User is a person interacting with the bot. Users are created on first
// contact and never deleted by the core.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TelegramID: messenger recipient id; unique.
//   - Username / FirstName / LastName: optional profile data.
//   - Status: one of active, inactive, banned, pending.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	TelegramID int64      `json:"telegram_id" gorm:"not null;uniqueIndex:ux_users_telegram"`
	Username   string     `json:"username"    gorm:"type:varchar(64)"`
	FirstName  string     `json:"first_name"  gorm:"type:varchar(128)"`
	LastName   string     `json:"last_name"   gorm:"type:varchar(128)"`
	Status     UserStatus `json:"status"      gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('active','inactive','banned','pending')"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
