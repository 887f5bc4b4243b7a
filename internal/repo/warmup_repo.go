// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for warm-up
// scenarios, per-user progress and the delivery log.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// CreateScenario inserts sc together with its messages.
func CreateScenario(ctx context.Context, db *gorm.DB, sc *domain.WarmupScenario) (*domain.WarmupScenario, error) {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	for i := range sc.Messages {
		if sc.Messages[i].ID == "" {
			sc.Messages[i].ID = uuid.NewString()
		}
		sc.Messages[i].ScenarioID = sc.ID
	}
	if err := db.WithContext(ctx).Create(sc).Error; err != nil {
		return nil, err
	}
	return sc, nil
}

// GetScenarioByName fetches the first scenario named name.
func GetScenarioByName(ctx context.Context, db *gorm.DB, name string) (*domain.WarmupScenario, error) {
	var sc domain.WarmupScenario
	if err := db.WithContext(ctx).Where("name = ?", name).First(&sc).Error; err != nil {
		return nil, err
	}
	return &sc, nil
}

// GetActiveScenario returns the oldest active scenario, or ErrNotFound.
func GetActiveScenario(ctx context.Context, db *gorm.DB) (*domain.WarmupScenario, error) {
	var sc domain.WarmupScenario
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		First(&sc).Error
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// ListScenarioMessages returns the active messages of scenarioID in step order.
func ListScenarioMessages(ctx context.Context, db *gorm.DB, scenarioID string) ([]domain.WarmupMessage, error) {
	var out []domain.WarmupMessage
	err := db.WithContext(ctx).
		Where("scenario_id = ? AND is_active = ?", scenarioID, true).
		Order("step_order ASC").
		Find(&out).Error
	return out, err
}

// GetRunningWarmup returns the user's warm-up that is neither completed nor
// stopped, or ErrNotFound.
func GetRunningWarmup(ctx context.Context, db *gorm.DB, userID string) (*domain.UserWarmup, error) {
	var uw domain.UserWarmup
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_completed = ? AND is_stopped = ?", userID, false, false).
		Order("started_at DESC").
		First(&uw).Error
	if err != nil {
		return nil, err
	}
	return &uw, nil
}

// CreateUserWarmup starts scenarioID for userID at startedAt.
func CreateUserWarmup(ctx context.Context, db *gorm.DB, userID, scenarioID string, startedAt time.Time) (*domain.UserWarmup, error) {
	uw := &domain.UserWarmup{
		ID:         uuid.NewString(),
		UserID:     userID,
		ScenarioID: scenarioID,
		StartedAt:  startedAt.UTC(),
	}
	if err := db.WithContext(ctx).Omit("User", "Scenario").Create(uw).Error; err != nil {
		return nil, err
	}
	return uw, nil
}

// ListRunningWarmups returns all running warm-ups with their user preloaded.
func ListRunningWarmups(ctx context.Context, db *gorm.DB) ([]domain.UserWarmup, error) {
	var out []domain.UserWarmup
	err := db.WithContext(ctx).
		Preload("User").
		Where("is_completed = ? AND is_stopped = ?", false, false).
		Order("started_at ASC").
		Find(&out).Error
	return out, err
}

// WarmupMessageDelivered reports whether messageID was successfully sent
// to userID.
func WarmupMessageDelivered(ctx context.Context, db *gorm.DB, userID, messageID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.UserWarmupMessage{}).
		Where("user_id = ? AND warmup_message_id = ? AND is_sent = ?", userID, messageID, true).
		Count(&n).Error
	return n > 0, err
}

// CountFailedWarmupDeliveries counts the failed attempts to send messageID
// to userID.
func CountFailedWarmupDeliveries(ctx context.Context, db *gorm.DB, userID, messageID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.UserWarmupMessage{}).
		Where("user_id = ? AND warmup_message_id = ? AND is_sent = ?", userID, messageID, false).
		Count(&n).Error
	return n, err
}

// CreateWarmupDelivery appends a delivery attempt to the log.
func CreateWarmupDelivery(ctx context.Context, db *gorm.DB, rec *domain.UserWarmupMessage) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// AdvanceWarmup sets the next step and the last send time of the warm-up.
func AdvanceWarmup(ctx context.Context, db *gorm.DB, id string, step int, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.UserWarmup{}).
		Where("id = ?", id).
		Updates(map[string]any{"current_step": step, "last_message_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CompleteWarmup marks the warm-up as finished.
func CompleteWarmup(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.UserWarmup{}).
		Where("id = ?", id).
		Update("is_completed", true).Error
}

// StopWarmup stops one warm-up.
func StopWarmup(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.UserWarmup{}).
		Where("id = ?", id).
		Update("is_stopped", true).Error
}

// StopUserWarmups stops every running warm-up of userID and returns how
// many were stopped.
func StopUserWarmups(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.UserWarmup{}).
		Where("user_id = ? AND is_completed = ? AND is_stopped = ?", userID, false, false).
		Update("is_stopped", true)
	return res.RowsAffected, res.Error
}

// WarmupCounts returns the number of running, completed and stopped warm-ups.
func WarmupCounts(ctx context.Context, db *gorm.DB) (running, completed, stopped int64, err error) {
	m := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.UserWarmup{}) }
	if err = m().Where("is_completed = ? AND is_stopped = ?", false, false).Count(&running).Error; err != nil {
		return
	}
	if err = m().Where("is_completed = ?", true).Count(&completed).Error; err != nil {
		return
	}
	err = m().Where("is_stopped = ?", true).Count(&stopped).Error
	return
}
