package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/services"
)

var errBoom = errors.New("boom")

// fakeUsers keeps users in memory, keyed by id.
type fakeUsers struct {
	mu    sync.Mutex
	byID  map[string]*domain.User
	err   error
	calls int
}

func newFakeUsers(users ...domain.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*domain.User{}}
	for i := range users {
		u := users[i]
		f.byID[u.ID] = &u
	}
	return f
}

func (f *fakeUsers) Register(_ context.Context, in services.RegisterInput) (*domain.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	for _, u := range f.byID {
		if u.TelegramID == in.TelegramID {
			return u, false, nil
		}
	}
	u := &domain.User{ID: "u-new", TelegramID: in.TelegramID, Username: in.Username, FirstName: in.FirstName, Status: domain.UserActive}
	f.byID[u.ID] = u
	return u, true, nil
}

func (f *fakeUsers) Get(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) ByTelegramID(_ context.Context, tid int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.TelegramID == tid {
			return u, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeUsers) SetStatus(_ context.Context, id string, st domain.UserStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return services.ErrUserNotFound
	}
	u.Status = st
	return nil
}

// fakeMagnets issues the first catalog entry once per user.
type fakeMagnets struct {
	mu      sync.Mutex
	catalog []domain.LeadMagnet
	issued  map[string]string
	updated time.Time
	issues  int
	err     error
}

func newFakeMagnets(items ...domain.LeadMagnet) *fakeMagnets {
	return &fakeMagnets{catalog: items, issued: map[string]string{}, updated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (f *fakeMagnets) Issue(_ context.Context, userID string) (*domain.LeadMagnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues++
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.issued[userID]; ok {
		return nil, services.ErrAlreadyIssued
	}
	for i := range f.catalog {
		if f.catalog[i].IsActive {
			f.issued[userID] = f.catalog[i].ID
			lm := f.catalog[i]
			return &lm, nil
		}
	}
	return nil, services.ErrNoActiveLeadMagnet
}

func (f *fakeMagnets) UserLeadMagnets(_ context.Context, userID string) ([]domain.LeadMagnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LeadMagnet
	if id, ok := f.issued[userID]; ok {
		for _, lm := range f.catalog {
			if lm.ID == id {
				out = append(out, lm)
			}
		}
	}
	return out, nil
}

func (f *fakeMagnets) filter(keep func(domain.LeadMagnet) bool) []domain.LeadMagnet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.LeadMagnet{}
	for _, lm := range f.catalog {
		if keep(lm) {
			out = append(out, lm)
		}
	}
	return out
}

func (f *fakeMagnets) ListActive(context.Context) ([]domain.LeadMagnet, error) {
	return f.filter(func(lm domain.LeadMagnet) bool { return lm.IsActive }), nil
}

func (f *fakeMagnets) ListAll(context.Context) ([]domain.LeadMagnet, error) {
	return f.filter(func(domain.LeadMagnet) bool { return true }), nil
}

func (f *fakeMagnets) ListByType(_ context.Context, t domain.LeadMagnetType) ([]domain.LeadMagnet, error) {
	return f.filter(func(lm domain.LeadMagnet) bool { return lm.IsActive && lm.Type == t }), nil
}

func (f *fakeMagnets) Get(_ context.Context, id string) (*domain.LeadMagnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hit []domain.LeadMagnet
	for _, lm := range f.catalog {
		if lm.ID == id || (len(id) == 8 && len(lm.ID) >= 8 && lm.ID[:8] == id) {
			hit = append(hit, lm)
		}
	}
	switch len(hit) {
	case 0:
		return nil, services.ErrLeadMagnetNotFound
	case 1:
		return &hit[0], nil
	default:
		return nil, services.ErrAmbiguousID
	}
}

func (f *fakeMagnets) Create(_ context.Context, in services.LeadMagnetCreate) (*domain.LeadMagnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.Type == domain.LeadMagnetText && in.MessageText == "" {
		return nil, services.ErrInvalidLeadMagnet
	}
	lm := domain.LeadMagnet{ID: "lm-created-" + in.Name, Name: in.Name, Type: in.Type, FileURL: in.FileURL, MessageText: in.MessageText, IsActive: true}
	f.catalog = append(f.catalog, lm)
	f.updated = f.updated.Add(time.Second)
	return &lm, nil
}

func (f *fakeMagnets) Update(ctx context.Context, id string, in services.LeadMagnetUpdate) (*domain.LeadMagnet, error) {
	lm, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		lm.Name = *in.Name
	}
	return lm, nil
}

func (f *fakeMagnets) Toggle(ctx context.Context, id string) (*domain.LeadMagnet, error) {
	lm, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lm.IsActive = !lm.IsActive
	return lm, nil
}

func (f *fakeMagnets) Delete(ctx context.Context, id string) error {
	_, err := f.Get(ctx, id)
	return err
}

func (f *fakeMagnets) Stats(context.Context) (*services.LeadMagnetStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &services.LeadMagnetStats{TotalIssued: int64(len(f.issued)), UniqueUsers: int64(len(f.issued))}, nil
}

func (f *fakeMagnets) IssuedBetween(_ context.Context, from, to time.Time, _ domain.LeadMagnetType) (int64, error) {
	if !from.Before(to) {
		return 0, errBoom
	}
	return int64(len(f.issued)), nil
}

func (f *fakeMagnets) Catalog(context.Context) (int64, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := f.updated
	return int64(len(f.catalog)), &ts, nil
}

// fakeProducts knows a single offer.
type fakeProducts struct {
	offerID string
	shown   map[string]bool
}

func (f *fakeProducts) ActiveByType(_ context.Context, t domain.ProductType) ([]domain.Product, error) {
	return []domain.Product{{ID: "p-1", Name: "Mini course", Type: t}}, nil
}

func (f *fakeProducts) Show(_ context.Context, userID, offerID string) (*domain.UserProductOffer, error) {
	if offerID != f.offerID {
		return nil, services.ErrOfferNotFound
	}
	if f.shown == nil {
		f.shown = map[string]bool{}
	}
	f.shown[userID] = true
	return &domain.UserProductOffer{ID: "s-1", UserID: userID, OfferID: offerID}, nil
}

func (f *fakeProducts) Click(_ context.Context, userID, offerID string) error {
	if offerID != f.offerID {
		return services.ErrOfferNotFound
	}
	if !f.shown[userID] {
		return services.ErrNotShown
	}
	return nil
}

func (f *fakeProducts) OfferStats(_ context.Context, offerID string) (*services.OfferStats, error) {
	if offerID != f.offerID {
		return nil, services.ErrOfferNotFound
	}
	return &services.OfferStats{OfferID: offerID, Shows: 4, Clicks: 1, Conversion: 0.25}, nil
}

// fakeFollowUps returns fixed candidates and records the threshold asked for.
type fakeFollowUps struct {
	cands []services.Candidate
	got   time.Duration
	err   error
}

func (f *fakeFollowUps) Eligible(_ context.Context, th time.Duration) ([]services.Candidate, error) {
	f.got = th
	return f.cands, f.err
}

type fakeWarmups struct {
	running map[string]bool
}

func (f *fakeWarmups) Start(_ context.Context, userID string) (*domain.UserWarmup, error) {
	if userID == "no-scenario" {
		return nil, services.ErrNoActiveScenario
	}
	if f.running == nil {
		f.running = map[string]bool{}
	}
	f.running[userID] = true
	return &domain.UserWarmup{ID: "w-1", UserID: userID}, nil
}

func (f *fakeWarmups) Stop(_ context.Context, userID string) (bool, error) {
	was := f.running[userID]
	delete(f.running, userID)
	return was, nil
}

func (f *fakeWarmups) Stats(context.Context) (*services.WarmupStats, error) {
	return &services.WarmupStats{Running: int64(len(f.running))}, nil
}

type fakeFAQ struct{}

func (fakeFAQ) Answer(_ context.Context, q string, limit int) ([]services.FAQMatch, error) {
	if q == "" {
		return nil, services.ErrEmptyQuery
	}
	if q == "nothing" {
		return nil, nil
	}
	out := []services.FAQMatch{{ID: "f-1", Question: "How do I pay?", Answer: "By card.", Score: 0.8}}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeJobs struct {
	threshold time.Duration
	followUps int
	warmups   int
	mailings  int
}

func (f *fakeJobs) RunFollowUps(_ context.Context, th time.Duration) (services.DeliveryReport, error) {
	f.followUps++
	f.threshold = th
	return services.DeliveryReport{Candidates: 2, Sent: 1, Failed: 1}, nil
}

func (f *fakeJobs) RunWarmups(context.Context) (services.DeliveryReport, error) {
	f.warmups++
	return services.DeliveryReport{Candidates: 1, Sent: 1}, nil
}

func (f *fakeJobs) RunMailings(context.Context) (services.DeliveryReport, error) {
	f.mailings++
	return services.DeliveryReport{Candidates: 3, Sent: 3}, nil
}

// fakeMailings keeps mailings in memory and enforces the status rules of the
// real service.
type fakeMailings struct {
	mu    sync.Mutex
	items []*domain.Mailing
	seq   int
	err   error
}

func (f *fakeMailings) find(id string) (*domain.Mailing, error) {
	var hits []*domain.Mailing
	for _, m := range f.items {
		if m.ID == id || (len(id) == services.ShortIDLen && strings.HasPrefix(m.ID, id)) {
			hits = append(hits, m)
		}
	}
	switch len(hits) {
	case 0:
		return nil, services.ErrMailingNotFound
	case 1:
		return hits[0], nil
	default:
		return nil, services.ErrAmbiguousID
	}
}

func (f *fakeMailings) Create(_ context.Context, in services.MailingCreate) (*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.MessageText) == "" {
		return nil, services.ErrInvalidMailing
	}
	f.seq++
	m := &domain.Mailing{
		ID:          fmt.Sprintf("%08x-0000-4000-8000-000000000000", f.seq),
		Name:        in.Name,
		MessageText: in.MessageText,
		Status:      domain.MailingDraft,
		CreatedBy:   in.CreatedBy,
	}
	f.items = append(f.items, m)
	return m, nil
}

func (f *fakeMailings) Get(_ context.Context, id string) (*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(id)
}

func (f *fakeMailings) List(context.Context) ([]domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Mailing
	for i := len(f.items) - 1; i >= 0; i-- {
		out = append(out, *f.items[i])
	}
	return out, nil
}

func (f *fakeMailings) Update(_ context.Context, id string, in services.MailingUpdate) (*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MailingDraft && m.Status != domain.MailingScheduled {
		return nil, services.ErrMailingState
	}
	if in.Name != nil {
		m.Name = *in.Name
	}
	if in.MessageText != nil {
		m.MessageText = *in.MessageText
	}
	return m, nil
}

func (f *fakeMailings) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.find(id)
	if err != nil {
		return err
	}
	if m.Status == domain.MailingSending {
		return services.ErrMailingState
	}
	for i := range f.items {
		if f.items[i] == m {
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeMailings) Prepare(_ context.Context, id string) (*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MailingDraft {
		return nil, services.ErrMailingState
	}
	m.Status, m.TotalRecipients = domain.MailingScheduled, 2
	return m, nil
}

func (f *fakeMailings) Reset(_ context.Context, id string) (*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.MailingSending {
		return nil, services.ErrMailingState
	}
	m.Status, m.TotalRecipients, m.SentCount, m.FailedCount = domain.MailingDraft, 0, 0, 0
	return m, nil
}

func (f *fakeMailings) Stats(_ context.Context, id string) (*services.MailingStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.find(id)
	if err != nil {
		return nil, err
	}
	return &services.MailingStats{
		Mailing:        *m,
		StatusCounts:   map[domain.RecipientStatus]int64{domain.RecipientPending: int64(m.TotalRecipients)},
		CompletionRate: 0,
	}, nil
}

func (f *fakeMailings) UsersCount(context.Context) (services.UsersCount, error) {
	return services.UsersCount{Total: 5, Active: 4}, nil
}

// memIdem is an in-memory IdempotencyStore.
type memIdem struct {
	mu   sync.Mutex
	rows map[string]struct {
		id     string
		status int
	}
}

func newMemIdem() *memIdem {
	return &memIdem{rows: map[string]struct {
		id     string
		status int
	}{}}
}

func (m *memIdem) k(subject, scope, key string) string { return subject + "|" + scope + "|" + key }

func (m *memIdem) Lookup(_ context.Context, subject, scope, key string) (string, int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[m.k(subject, scope, key)]
	return r.id, r.status, ok, nil
}

func (m *memIdem) Save(_ context.Context, subject, scope, key, id string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[m.k(subject, scope, key)] = struct {
		id     string
		status int
	}{id, status}
	return nil
}

func (m *memIdem) exists(ctx context.Context, subject, scope, key string, _ time.Time) (bool, error) {
	_, _, ok, err := m.Lookup(ctx, subject, scope, key)
	return ok, err
}
