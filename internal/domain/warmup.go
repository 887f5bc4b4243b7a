package domain

import "time"

// WarmupMessageType tags the role of a message within a warm-up sequence.
type WarmupMessageType string

const (
	WarmupWelcome     WarmupMessageType = "welcome"
	WarmupPainPoint   WarmupMessageType = "pain_point"
	WarmupSolution    WarmupMessageType = "solution"
	WarmupSocialProof WarmupMessageType = "social_proof"
	WarmupOffer       WarmupMessageType = "offer"
	WarmupFollowUp    WarmupMessageType = "follow_up"
)

// Valid reports whether t is a known warm-up message type.
func (t WarmupMessageType) Valid() bool {
	switch t {
	case WarmupWelcome, WarmupPainPoint, WarmupSolution, WarmupSocialProof, WarmupOffer, WarmupFollowUp:
		return true
	}
	return false
}

// WarmupScenario is an ordered drip sequence. Only one scenario is expected
// to be active at a time.
type WarmupScenario struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	IsActive    bool      `json:"is_active"   gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Messages []WarmupMessage `json:"messages,omitempty" gorm:"foreignKey:ScenarioID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for WarmupScenario.
func (WarmupScenario) TableName() string { return "warmup_scenarios" }

// WarmupMessage is one step of a scenario. DelayHours is measured from the
// previous step's send; the first step is sent immediately.
type WarmupMessage struct {
	ID          string            `json:"id"           gorm:"type:char(36);primaryKey"`
	ScenarioID  string            `json:"scenario_id"  gorm:"type:char(36);not null;index:idx_wm_scenario_order,priority:1"`
	MessageType WarmupMessageType `json:"message_type" gorm:"type:varchar(32);not null"`
	Title       string            `json:"title"        gorm:"type:varchar(255);not null"`
	Text        string            `json:"text"         gorm:"type:text;not null"`
	DelayHours  int               `json:"delay_hours"  gorm:"not null"`
	Order       int               `json:"order"        gorm:"column:step_order;not null;index:idx_wm_scenario_order,priority:2"`
	IsActive    bool              `json:"is_active"    gorm:"not null"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName returns the database table name for WarmupMessage.
func (WarmupMessage) TableName() string { return "warmup_messages" }

// UserWarmup tracks a user's progress through a scenario. CurrentStep is the
// zero-based index of the next message to send.
type UserWarmup struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID        string     `json:"user_id"         gorm:"type:char(36);not null;index"`
	ScenarioID    string     `json:"scenario_id"     gorm:"type:char(36);not null;index"`
	CurrentStep   int        `json:"current_step"    gorm:"not null;default:0"`
	StartedAt     time.Time  `json:"started_at"      gorm:"not null"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	IsCompleted   bool       `json:"is_completed"    gorm:"not null;default:false"`
	IsStopped     bool       `json:"is_stopped"      gorm:"not null;default:false"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	User     User           `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Scenario WarmupScenario `json:"-" gorm:"foreignKey:ScenarioID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserWarmup.
func (UserWarmup) TableName() string { return "user_warmups" }

// UserWarmupMessage is the delivery log of warm-up messages. Only rows with
// IsSent count as delivered; failed attempts keep ErrorMessage.
type UserWarmupMessage struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	UserID          string    `json:"user_id"           gorm:"type:char(36);not null;index:idx_uwm_user_msg,priority:1"`
	WarmupMessageID string    `json:"warmup_message_id" gorm:"type:char(36);not null;index:idx_uwm_user_msg,priority:2"`
	SentAt          time.Time `json:"sent_at"           gorm:"not null"`
	IsSent          bool      `json:"is_sent"           gorm:"not null;default:false"`
	ErrorMessage    string    `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserWarmupMessage.
func (UserWarmupMessage) TableName() string { return "user_warmup_messages" }
