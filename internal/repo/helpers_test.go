package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func newFullDB(t *testing.T) *gorm.DB {
	t.Helper()
	return newTestDB(t, Models()...)
}

var tgSeq int64 = 1000

func mkUser(t *testing.T, db *gorm.DB, status domain.UserStatus) *domain.User {
	t.Helper()
	tgSeq++
	u, err := CreateUser(context.Background(), db, &domain.User{TelegramID: tgSeq, Status: status})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mkOffer(t *testing.T, db *gorm.DB, pt domain.ProductType) *domain.ProductOffer {
	t.Helper()
	ctx := context.Background()
	p, err := CreateProduct(ctx, db, &domain.Product{Name: "P-" + uuid.NewString()[:8], Type: pt, Price: 900, Currency: domain.CurrencyEUR, IsActive: true})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	o, err := CreateOffer(ctx, db, &domain.ProductOffer{ProductID: p.ID, Name: "O", Text: "buy now", IsActive: true})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	return o
}

func mkShowing(t *testing.T, db *gorm.DB, u *domain.User, o *domain.ProductOffer, at time.Time) *domain.UserProductOffer {
	t.Helper()
	s, err := CreateShowing(context.Background(), db, u.ID, o.ID, at)
	if err != nil {
		t.Fatalf("CreateShowing: %v", err)
	}
	return s
}

func mkMagnet(t *testing.T, db *gorm.DB, name string, active bool, sort int) *domain.LeadMagnet {
	t.Helper()
	lm, err := CreateLeadMagnet(context.Background(), db, &domain.LeadMagnet{
		Name: name, Type: domain.LeadMagnetText, MessageText: "gift", IsActive: active, SortOrder: sort,
	})
	if err != nil {
		t.Fatalf("CreateLeadMagnet: %v", err)
	}
	return lm
}
