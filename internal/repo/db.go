// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// pragmas are passed in the DSN so every pooled connection gets them.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// sqliteDSN appends the connection pragmas to path.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// OpenSQLite opens (or creates) the SQLite store at path. The parent directory
// must exist. GORM timestamps are written in UTC so the follow-up and warm-up
// cutoffs compare correctly in SQL.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer at a time in WAL mode; the rest wait on busy_timeout.
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Instrument registers the OpenTelemetry GORM plugin so every query emits a
// span under the caller's context. Metrics are left to Prometheus.
func Instrument(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// Models lists every persisted type in migration order (parents first).
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Product{},
		&domain.ProductOffer{},
		&domain.UserProductOffer{},
		&domain.UserFollowUp{},
		&domain.LeadMagnet{},
		&domain.UserLeadMagnet{},
		&domain.WarmupScenario{},
		&domain.WarmupMessage{},
		&domain.UserWarmup{},
		&domain.UserWarmupMessage{},
		&domain.Mailing{},
		&domain.MailingRecipient{},
		&domain.FAQEntry{},
		&domain.Idempotency{},
	}
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
