package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/http/middleware"
	"github.com/tbourn/go-leadbot-backend/internal/services"
)

type fixture struct {
	h        *Handlers
	r        *gin.Engine
	users    *fakeUsers
	magnets  *fakeMagnets
	fu       *fakeFollowUps
	jobs     *fakeJobs
	idem     *memIdem
	mailings *fakeMailings
}

func newFixture(t *testing.T, withJobs bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		users: newFakeUsers(domain.User{ID: "u-1", TelegramID: 101, Status: domain.UserActive}),
		magnets: newFakeMagnets(
			domain.LeadMagnet{ID: "aaaaaaaa-0000-4000-8000-000000000001", Name: "Guide", Type: domain.LeadMagnetPDF, IsActive: true},
			domain.LeadMagnet{ID: "bbbbbbbb-0000-4000-8000-000000000002", Name: "Sheet", Type: domain.LeadMagnetGoogleSheet},
		),
		fu: &fakeFollowUps{cands: []services.Candidate{
			{ShowingID: "s-1", UserID: "u-1", TelegramID: 101, OfferID: "o-1", ProductID: "p-1", ShownAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		}},
		idem:     newMemIdem(),
		mailings: &fakeMailings{},
	}
	d := Deps{
		Users:     f.users,
		Magnets:   f.magnets,
		Products:  &fakeProducts{offerID: "o-1"},
		FollowUps: f.fu,
		Warmups:   &fakeWarmups{},
		Mailings:  f.mailings,
		FAQ:       fakeFAQ{},
		Idem:      f.idem,
	}
	if withJobs {
		f.jobs = &fakeJobs{}
		d.Jobs = f.jobs
	}
	f.h = New(d)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, f.idem.exists))
	r.POST("/users", f.h.RegisterUser)
	r.GET("/users/by-telegram/:telegram_id", f.h.GetUserByTelegramID)
	r.GET("/users/:id", f.h.GetUser)
	r.PUT("/users/:id/status", f.h.SetUserStatus)
	r.POST("/users/:id/lead-magnet", f.h.IssueLeadMagnet)
	r.GET("/users/:id/lead-magnets", f.h.ListUserLeadMagnets)
	r.POST("/users/:id/offers/:offer_id/show", f.h.ShowOffer)
	r.POST("/users/:id/offers/:offer_id/click", f.h.ClickOffer)
	r.POST("/users/:id/warmup", f.h.StartWarmup)
	r.DELETE("/users/:id/warmup", f.h.StopWarmup)
	r.GET("/lead-magnets", f.h.ListLeadMagnets)
	r.POST("/lead-magnets", f.h.CreateLeadMagnet)
	r.GET("/lead-magnets/stats", f.h.LeadMagnetStats)
	r.GET("/lead-magnets/issued", f.h.IssuedBetween)
	r.GET("/lead-magnets/:id", f.h.GetLeadMagnet)
	r.PATCH("/lead-magnets/:id", f.h.UpdateLeadMagnet)
	r.DELETE("/lead-magnets/:id", f.h.DeleteLeadMagnet)
	r.POST("/lead-magnets/:id/toggle", f.h.ToggleLeadMagnet)
	r.GET("/products", f.h.ListProducts)
	r.GET("/offers/:id/stats", f.h.OfferStats)
	r.GET("/followups/eligible", f.h.EligibleFollowUps)
	r.POST("/followups/run", f.h.RunFollowUps)
	r.POST("/warmups/run", f.h.RunWarmups)
	r.GET("/warmups/stats", f.h.WarmupStats)
	r.GET("/mailings", f.h.ListMailings)
	r.POST("/mailings", f.h.CreateMailing)
	r.GET("/mailings/users-count", f.h.MailingUsersCount)
	r.POST("/mailings/run", f.h.RunMailings)
	r.GET("/mailings/:id", f.h.GetMailing)
	r.PATCH("/mailings/:id", f.h.UpdateMailing)
	r.DELETE("/mailings/:id", f.h.DeleteMailing)
	r.POST("/mailings/:id/prepare", f.h.PrepareMailing)
	r.POST("/mailings/:id/reset", f.h.ResetMailing)
	r.GET("/mailings/:id/stats", f.h.MailingStats)
	r.GET("/faq/answer", f.h.AnswerFAQ)
	f.r = r
	return f
}

func (f *fixture) do(method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRegisterUser_CreatedThenExisting(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/users", map[string]any{"telegram_id": 555, "username": " jane "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	u := decode[domain.User](t, w)
	assert.Equal(t, int64(555), u.TelegramID)
	assert.Equal(t, "jane", u.Username)

	w = f.do(http.MethodPost, "/users", map[string]any{"telegram_id": 555})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/users", map[string]any{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserLookups(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/users/u-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/users/nope", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/users/by-telegram/101", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/users/by-telegram/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/users/by-telegram/999", nil).Code)
}

func TestSetUserStatus(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPut, "/users/u-1/status", map[string]string{"status": "inactive"})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.UserInactive, f.users.byID["u-1"].Status)

	w = f.do(http.MethodPut, "/users/u-1/status", map[string]string{"status": "sleeping"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodPut, "/users/ghost/status", map[string]string{"status": "active"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueLeadMagnet_OnceThenConflict(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/users/u-1/lead-magnet", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	lm := decode[domain.LeadMagnet](t, w)
	assert.Equal(t, "Guide", lm.Name)

	w = f.do(http.MethodPost, "/users/u-1/lead-magnet", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	er := decode[ErrorResponse](t, w)
	assert.Equal(t, ErrCodeAlreadyIssued, er.Code)
	assert.NotEmpty(t, er.RequestID)

	w = f.do(http.MethodGet, "/users/u-1/lead-magnets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[UserLeadMagnetsResponse](t, w).LeadMagnets, 1)
}

func TestIssueLeadMagnet_ReplayWithSameKey(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/users/u-1/lead-magnet", nil, "Idempotency-Key", "tg-update-42")
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[domain.LeadMagnet](t, w)

	w = f.do(http.MethodPost, "/users/u-1/lead-magnet", nil, "Idempotency-Key", "tg-update-42")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "true", w.Header().Get(HeaderIdempotentReplay))
	assert.Equal(t, first.ID, decode[domain.LeadMagnet](t, w).ID)
	assert.Equal(t, 1, f.magnets.issues, "replay must not reach the service")

	// A fresh key is a new request, and the gift is already gone.
	w = f.do(http.MethodPost, "/users/u-1/lead-magnet", nil, "Idempotency-Key", "tg-update-43")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIssueLeadMagnet_Errors(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/users/ghost/lead-magnet", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, f.magnets.issues)

	f.magnets.catalog[0].IsActive = false
	w = f.do(http.MethodPost, "/users/u-1/lead-magnet", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ErrCodeNoActive, decode[ErrorResponse](t, w).Code)

	f.magnets.err = fmt.Errorf("%w: disk full", services.ErrStore)
	w = f.do(http.MethodPost, "/users/u-1/lead-magnet", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	er := decode[ErrorResponse](t, w)
	assert.Equal(t, "internal server error", er.Message)
	assert.NotContains(t, w.Body.String(), "disk full")
}

func TestListLeadMagnets_FiltersAndETag(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodGet, "/lead-magnets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[ListLeadMagnetsResponse](t, w).Total)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = f.do(http.MethodGet, "/lead-magnets", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Zero(t, w.Body.Len())

	w = f.do(http.MethodGet, "/lead-magnets?all=true", nil, "If-None-Match", etag)
	require.Equal(t, http.StatusOK, w.Code, "filter is part of the validator")
	assert.Equal(t, 2, decode[ListLeadMagnetsResponse](t, w).Total)

	w = f.do(http.MethodGet, "/lead-magnets?type=google_sheet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[ListLeadMagnetsResponse](t, w).Total)

	w = f.do(http.MethodGet, "/lead-magnets?type=video", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// A write invalidates the old validator.
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/lead-magnets", map[string]any{"name": "New", "type": "link", "file_url": "https://example.com/x"}).Code)
	w = f.do(http.MethodGet, "/lead-magnets", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
}

func TestCreateLeadMagnet_ValidationAndReplay(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/lead-magnets", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/lead-magnets", map[string]any{"name": "Tips", "type": "text"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ErrCodeInvalid, decode[ErrorResponse](t, w).Code)

	body := map[string]any{"name": "Tips", "type": "text", "message_text": "hello"}
	w = f.do(http.MethodPost, "/lead-magnets", body, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, w.Code)
	w = f.do(http.MethodPost, "/lead-magnets", body, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get(HeaderIdempotentReplay))
	assert.Len(t, f.magnets.catalog, 3)
}

func TestLeadMagnetByID_ShortIDAndAmbiguity(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodGet, "/lead-magnets/aaaaaaaa", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Guide", decode[domain.LeadMagnet](t, w).Name)

	f.magnets.catalog = append(f.magnets.catalog, domain.LeadMagnet{ID: "aaaaaaaa-ffff-4000-8000-000000000003"})
	w = f.do(http.MethodGet, "/lead-magnets/aaaaaaaa", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeAmbiguousID, decode[ErrorResponse](t, w).Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/lead-magnets/zzzzzzzz", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/lead-magnets/zzzzzzzz", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/lead-magnets/bbbbbbbb", nil).Code)

	w = f.do(http.MethodPatch, "/lead-magnets/bbbbbbbb", map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode[domain.LeadMagnet](t, w).Name)

	w = f.do(http.MethodPost, "/lead-magnets/bbbbbbbb/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.LeadMagnet](t, w).IsActive)
}

func TestLeadMagnetStatsAndIssued(t *testing.T) {
	f := newFixture(t, false)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/users/u-1/lead-magnet", nil).Code)

	w := f.do(http.MethodGet, "/lead-magnets/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[services.LeadMagnetStats](t, w).TotalIssued)

	w = f.do(http.MethodGet, "/lead-magnets/issued", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[IssuedCountResponse](t, w)
	assert.Equal(t, int64(1), got.Count)
	assert.InDelta(t, 30*24, got.To.Sub(got.From).Hours(), 0.001)

	w = f.do(http.MethodGet, "/lead-magnets/issued?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodGet, "/lead-magnets/issued?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOffers_ShowClickStats(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/users/u-1/offers/o-1/click", nil).Code)
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/users/u-1/offers/o-1/show", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/users/u-1/offers/o-1/click", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/users/u-1/offers/o-9/show", nil).Code)

	w := f.do(http.MethodGet, "/offers/o-1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.25, decode[services.OfferStats](t, w).Conversion, 1e-9)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/offers/o-9/stats", nil).Code)

	w = f.do(http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ProductTripwire, decode[ListProductsResponse](t, w).Type)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/products?type=gadget", nil).Code)
}

func TestFollowUps_EligibleThresholds(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodGet, "/followups/eligible", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[EligibleResponse](t, w)
	assert.Equal(t, 48.0, out.ThresholdHours)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "s-1", out.Candidates[0].ShowingID)

	cases := []struct {
		q    string
		want time.Duration
	}{
		{"?hours=2", 2 * time.Hour},
		{"?hours=0.001", time.Minute},
		{"?hours=100000", maxThresholdHours * time.Hour},
		{"?hours=-3", services.DefaultFollowUpThreshold},
		{"?hours=abc", services.DefaultFollowUpThreshold},
	}
	for _, tc := range cases {
		t.Run(tc.q, func(t *testing.T) {
			require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/followups/eligible"+tc.q, nil).Code)
			assert.Equal(t, tc.want, f.fu.got)
		})
	}

	f.fu.err = context.DeadlineExceeded
	w = f.do(http.MethodGet, "/followups/eligible", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFollowUps_Run(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodPost, "/followups/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.do(http.MethodPost, "/followups/run?dry_run=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rep := decode[RunResponse](t, w)
	assert.True(t, rep.DryRun)
	assert.Equal(t, 1, rep.Candidates)
	assert.Zero(t, rep.Sent)

	f = newFixture(t, true)
	w = f.do(http.MethodPost, "/followups/run?hours=12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rep = decode[RunResponse](t, w)
	assert.False(t, rep.DryRun)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 12*time.Hour, f.jobs.threshold)
}

func TestWarmups(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/users/u-1/warmup", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPost, "/users/no-scenario/warmup", nil).Code)

	w := f.do(http.MethodGet, "/warmups/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[services.WarmupStats](t, w).Running)

	w = f.do(http.MethodDelete, "/users/u-1/warmup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[StopWarmupResponse](t, w).Stopped)
	w = f.do(http.MethodDelete, "/users/u-1/warmup", nil)
	assert.False(t, decode[StopWarmupResponse](t, w).Stopped)

	w = f.do(http.MethodPost, "/warmups/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.jobs.warmups)
}

func TestAnswerFAQ(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodGet, "/faq/answer?q=pay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[FAQAnswerResponse](t, w)
	assert.Equal(t, "pay", out.Query)
	assert.Len(t, out.Matches, 1)

	w = f.do(http.MethodGet, "/faq/answer?q=nothing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"query":"nothing","matches":[]}`, w.Body.String())

	w = f.do(http.MethodGet, "/faq/answer", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func Test_statusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("wrap: %w", services.ErrOfferNotFound), http.StatusNotFound, ErrCodeNotFound},
		{services.ErrAlreadyIssued, http.StatusConflict, ErrCodeAlreadyIssued},
		{services.ErrNotShown, http.StatusConflict, ErrCodeNotShown},
		{services.ErrNoActiveOffer, http.StatusUnprocessableEntity, ErrCodeNoActive},
		{services.ErrInvalidStatus, http.StatusUnprocessableEntity, ErrCodeInvalid},
		{context.Canceled, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{errBoom, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			st, code := statusOf(tc.err)
			assert.Equal(t, tc.status, st)
			assert.Equal(t, tc.code, code)
		})
	}
}
