// Broadcast mailing HTTP handlers (admin).
//
//   - GET    /mailings              (newest first)
//   - POST   /mailings              (create a draft; Idempotency-Key aware)
//   - GET    /mailings/users-count
//   - POST   /mailings/run          (deliver scheduled mailings now)
//   - GET    /mailings/{id}         (full id or 8-character short id)
//   - PATCH  /mailings/{id}
//   - DELETE /mailings/{id}
//   - POST   /mailings/{id}/prepare
//   - POST   /mailings/{id}/reset
//   - GET    /mailings/{id}/stats
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/services"
)

// ListMailingsResponse wraps a mailing listing.
type ListMailingsResponse struct {
	Mailings []domain.Mailing `json:"mailings"`
	Total    int              `json:"total"`
}

// ListMailings godoc
// @ID          listMailings
// @Summary     List mailings
// @Tags        Mailings
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Success     200  {object}  handlers.ListMailingsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /mailings [get]
func (h *Handlers) ListMailings(c *gin.Context) {
	items, err := h.mailings.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Mailing{}
	}
	ok(c, http.StatusOK, ListMailingsResponse{Mailings: items, Total: len(items)})
}

// CreateMailing godoc
// @ID          createMailing
// @Summary     Create a draft mailing
// @Description message_text is sent with HTML parse mode.
// @Tags        Mailings
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token    header  string                  false  "Admin token"
// @Param       Idempotency-Key  header  string                  false  "Retry key"
// @Param       body             body    services.MailingCreate  true   "Mailing"
// @Success     201  {object}  domain.Mailing
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /mailings [post]
func (h *Handlers) CreateMailing(c *gin.Context) {
	if h.replayed(c, func(ctx context.Context, id string) (any, error) { return h.mailings.Get(ctx, id) }) {
		return
	}
	var req services.MailingCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid mailing: "+err.Error())
		return
	}
	req.CreatedBy = c.GetString("userID")
	m, err := h.mailings.Create(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}

// GetMailing godoc
// @ID          getMailing
// @Summary     Get a mailing
// @Description id is the full UUID or its first 8 characters.
// @Tags        Mailings
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Mailing id or short id"
// @Success     200  {object}  domain.Mailing
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Short id is ambiguous"
// @Router      /mailings/{id} [get]
func (h *Handlers) GetMailing(c *gin.Context) {
	m, err := h.mailings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// UpdateMailing godoc
// @ID          updateMailing
// @Summary     Edit a mailing that has not started sending
// @Tags        Mailings
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token  header  string                  false  "Admin token"
// @Param       id             path    string                  true   "Mailing id or short id"
// @Param       body           body    services.MailingUpdate  true   "Fields to change"
// @Success     200  {object}  domain.Mailing
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Mailing already sending or sent"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /mailings/{id} [patch]
func (h *Handlers) UpdateMailing(c *gin.Context) {
	var req services.MailingUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update: "+err.Error())
		return
	}
	m, err := h.mailings.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// DeleteMailing godoc
// @ID          deleteMailing
// @Summary     Delete a mailing and its recipients
// @Tags        Mailings
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Mailing id or short id"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Mailing is being sent"
// @Router      /mailings/{id} [delete]
func (h *Handlers) DeleteMailing(c *gin.Context) {
	if err := h.mailings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// PrepareMailing godoc
// @ID          prepareMailing
// @Summary     Snapshot recipients and schedule a draft
// @Description Every active user becomes a pending recipient. The next delivery pass sends it.
// @Tags        Mailings
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Mailing id or short id"
// @Success     200  {object}  domain.Mailing
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Mailing is not a draft"
// @Router      /mailings/{id}/prepare [post]
func (h *Handlers) PrepareMailing(c *gin.Context) {
	m, err := h.mailings.Prepare(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// ResetMailing godoc
// @ID          resetMailing
// @Summary     Drop recipients and counters, back to draft
// @Tags        Mailings
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Mailing id or short id"
// @Success     200  {object}  domain.Mailing
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Mailing is being sent"
// @Router      /mailings/{id}/reset [post]
func (h *Handlers) ResetMailing(c *gin.Context) {
	m, err := h.mailings.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// MailingStats godoc
// @ID          mailingStats
// @Summary     Recipient breakdown of a mailing
// @Tags        Mailings
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Mailing id or short id"
// @Success     200  {object}  services.MailingStats
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /mailings/{id}/stats [get]
func (h *Handlers) MailingStats(c *gin.Context) {
	st, err := h.mailings.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// MailingUsersCount godoc
// @ID          mailingUsersCount
// @Summary     Audience size of a new mailing
// @Tags        Mailings
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Success     200  {object}  services.UsersCount
// @Router      /mailings/users-count [get]
func (h *Handlers) MailingUsersCount(c *gin.Context) {
	n, err := h.mailings.UsersCount(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

// RunMailings godoc
// @ID          runMailings
// @Summary     Deliver scheduled mailings now
// @Tags        Mailings
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Success     200  {object}  handlers.RunResponse
// @Failure     503  {object}  handlers.ErrorResponse  "No delivery runner configured"
// @Router      /mailings/run [post]
func (h *Handlers) RunMailings(c *gin.Context) {
	if h.jobs == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "delivery runner not configured")
		return
	}
	rep, err := h.jobs.RunMailings(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RunResponse{DeliveryReport: rep})
}
