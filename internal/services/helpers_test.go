package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/messaging"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func fixedNow(at *time.Time) func() time.Time { return func() time.Time { return *at } }

var tgSeq int64 = 5000

func mkUser(t *testing.T, db *gorm.DB, status domain.UserStatus) *domain.User {
	t.Helper()
	tgSeq++
	u, err := repo.CreateUser(context.Background(), db, &domain.User{TelegramID: tgSeq, Status: status})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mkOffer(t *testing.T, db *gorm.DB, pt domain.ProductType) *domain.ProductOffer {
	t.Helper()
	ctx := context.Background()
	p, err := repo.CreateProduct(ctx, db, &domain.Product{
		Name: "P-" + uuid.NewString()[:8], Type: pt, Price: 900, Currency: domain.CurrencyEUR, IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	o, err := repo.CreateOffer(ctx, db, &domain.ProductOffer{ProductID: p.ID, Name: "O", Text: "buy now", IsActive: true})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	return o
}

func mkShowing(t *testing.T, db *gorm.DB, u *domain.User, o *domain.ProductOffer, at time.Time) {
	t.Helper()
	if _, err := repo.CreateShowing(context.Background(), db, u.ID, o.ID, at); err != nil {
		t.Fatalf("CreateShowing: %v", err)
	}
}

func mkMagnet(t *testing.T, db *gorm.DB, name string, active bool, sort int) *domain.LeadMagnet {
	t.Helper()
	lm, err := repo.CreateLeadMagnet(context.Background(), db, &domain.LeadMagnet{
		Name: name, Type: domain.LeadMagnetText, MessageText: "gift", IsActive: active, SortOrder: sort,
	})
	if err != nil {
		t.Fatalf("CreateLeadMagnet: %v", err)
	}
	return lm
}

// recordingSender captures sent messages and fails for chat ids in failFor.
type recordingSender struct {
	mu      sync.Mutex
	sent    []messaging.Message
	failFor map[int64]bool
}

var errSend = errors.New("send failed")

func (r *recordingSender) Send(_ context.Context, m messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[m.ChatID] {
		return errSend
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// sleepRecorder is a SleepFunc that records durations without sleeping.
type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}
