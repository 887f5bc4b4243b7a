// Lead magnet catalog HTTP handlers (admin).
//
//   - GET    /lead-magnets                (active by default; ?all=true, ?type=pdf; weak ETag)
//   - POST   /lead-magnets                (create; Idempotency-Key aware)
//   - GET    /lead-magnets/stats
//   - GET    /lead-magnets/issued         (?from, ?to RFC3339; ?type)
//   - GET    /lead-magnets/{id}           (full id or 8-character short id)
//   - PATCH  /lead-magnets/{id}
//   - DELETE /lead-magnets/{id}
//   - POST   /lead-magnets/{id}/toggle
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/services"
	"github.com/tbourn/go-leadbot-backend/internal/sysutil"
)

//
// DTOs
//

// ListLeadMagnetsResponse wraps a catalog listing.
type ListLeadMagnetsResponse struct {
	LeadMagnets []domain.LeadMagnet `json:"lead_magnets"`
	Total       int                 `json:"total"`
}

// IssuedCountResponse is the issuance count of a period.
type IssuedCountResponse struct {
	From  time.Time             `json:"from"`
	To    time.Time             `json:"to"`
	Type  domain.LeadMagnetType `json:"type,omitempty"`
	Count int64                 `json:"count"`
}

//
// Helpers
//

// catalogETag is a weak validator over the catalog size, last update and
// listing filter. Any write to any lead magnet changes it.
func catalogETag(count int64, maxTS *time.Time, filter string) string {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"lead-magnets:%s:%d:%d"`, filter, count, ts)
}

// parsePeriod reads ?from and ?to (RFC3339). to defaults to now, from to 30
// days before to.
func parsePeriod(c *gin.Context) (from, to time.Time, err error) {
	to = time.Now().UTC()
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, fmt.Errorf("to: %w", err)
		}
	}
	from = to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, fmt.Errorf("from: %w", err)
		}
	}
	if !from.Before(to) {
		return from, to, fmt.Errorf("from must be before to")
	}
	return from.UTC(), to.UTC(), nil
}

//
// Handlers
//

// ListLeadMagnets godoc
// @ID          listLeadMagnets
// @Summary     List lead magnets
// @Description Active lead magnets by sort order. ?all=true includes inactive ones, ?type filters by format. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Lead magnets
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       all            query   bool    false  "Include inactive"
// @Param       type           query   string  false  "Filter by type"  Enums(pdf, google_sheet, link, text)
// @Success     200  {object}  handlers.ListLeadMagnetsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown type"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /lead-magnets [get]
func (h *Handlers) ListLeadMagnets(c *gin.Context) {
	ctx := c.Request.Context()
	typ := domain.LeadMagnetType(strings.TrimSpace(c.Query("type")))
	all := sysutil.IsTruthy(c.Query("all"))

	filter := "active"
	switch {
	case typ != "":
		if !typ.Valid() {
			failErr(c, services.ErrInvalidLeadMagnet)
			return
		}
		filter = "type=" + string(typ)
	case all:
		filter = "all"
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.magnets.Catalog(ctx); err == nil {
		etag := catalogETag(count, maxTS, filter)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	var (
		items []domain.LeadMagnet
		err   error
	)
	switch {
	case typ != "":
		items, err = h.magnets.ListByType(ctx, typ)
	case all:
		items, err = h.magnets.ListAll(ctx)
	default:
		items, err = h.magnets.ListActive(ctx)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListLeadMagnetsResponse{LeadMagnets: items, Total: len(items)})
}

// CreateLeadMagnet godoc
// @ID          createLeadMagnet
// @Summary     Create a lead magnet
// @Tags        Lead magnets
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token    header  string                      false  "Admin token"
// @Param       Idempotency-Key  header  string                      false  "Retry key"
// @Param       body             body    services.LeadMagnetCreate   true   "Lead magnet"
// @Success     201  {object}  domain.LeadMagnet
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /lead-magnets [post]
func (h *Handlers) CreateLeadMagnet(c *gin.Context) {
	if h.replayed(c, func(ctx context.Context, id string) (any, error) { return h.magnets.Get(ctx, id) }) {
		return
	}
	var req services.LeadMagnetCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid lead magnet: "+err.Error())
		return
	}
	lm, err := h.magnets.Create(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, lm.ID, http.StatusCreated)
	ok(c, http.StatusCreated, lm)
}

// GetLeadMagnet godoc
// @ID          getLeadMagnet
// @Summary     Get a lead magnet
// @Description id is the full UUID or its first 8 characters.
// @Tags        Lead magnets
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Lead magnet id or short id"
// @Success     200  {object}  domain.LeadMagnet
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Short id is ambiguous"
// @Router      /lead-magnets/{id} [get]
func (h *Handlers) GetLeadMagnet(c *gin.Context) {
	lm, err := h.magnets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, lm)
}

// UpdateLeadMagnet godoc
// @ID          updateLeadMagnet
// @Summary     Partially update a lead magnet
// @Description Only the fields present in the body are changed.
// @Tags        Lead magnets
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token  header  string                     false  "Admin token"
// @Param       id             path    string                     true   "Lead magnet id or short id"
// @Param       body           body    services.LeadMagnetUpdate  true   "Fields to change"
// @Success     200  {object}  domain.LeadMagnet
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Short id is ambiguous"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /lead-magnets/{id} [patch]
func (h *Handlers) UpdateLeadMagnet(c *gin.Context) {
	var req services.LeadMagnetUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update: "+err.Error())
		return
	}
	lm, err := h.magnets.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, lm)
}

// ToggleLeadMagnet godoc
// @ID          toggleLeadMagnet
// @Summary     Flip a lead magnet's active flag
// @Tags        Lead magnets
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Lead magnet id or short id"
// @Success     200  {object}  domain.LeadMagnet
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /lead-magnets/{id}/toggle [post]
func (h *Handlers) ToggleLeadMagnet(c *gin.Context) {
	lm, err := h.magnets.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, lm)
}

// DeleteLeadMagnet godoc
// @ID          deleteLeadMagnet
// @Summary     Delete a lead magnet and its issuance records
// @Tags        Lead magnets
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Lead magnet id or short id"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /lead-magnets/{id} [delete]
func (h *Handlers) DeleteLeadMagnet(c *gin.Context) {
	if err := h.magnets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// LeadMagnetStats godoc
// @ID          leadMagnetStats
// @Summary     Issuance statistics
// @Tags        Lead magnets
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Success     200  {object}  services.LeadMagnetStats
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /lead-magnets/stats [get]
func (h *Handlers) LeadMagnetStats(c *gin.Context) {
	st, err := h.magnets.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// IssuedBetween godoc
// @ID          leadMagnetsIssued
// @Summary     Issuance count in a period
// @Tags        Lead magnets
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       from           query   string  false  "Start (RFC3339), default to minus 30 days"
// @Param       to             query   string  false  "End (RFC3339), default now"
// @Param       type           query   string  false  "Lead magnet type"  Enums(pdf, google_sheet, link, text)
// @Success     200  {object}  handlers.IssuedCountResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad period"
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown type"
// @Router      /lead-magnets/issued [get]
func (h *Handlers) IssuedBetween(c *gin.Context) {
	from, to, err := parsePeriod(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	typ := domain.LeadMagnetType(strings.TrimSpace(c.Query("type")))
	n, err := h.magnets.IssuedBetween(c.Request.Context(), from, to, typ)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, IssuedCountResponse{From: from, To: to, Type: typ, Count: n})
}
