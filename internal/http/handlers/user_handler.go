// User HTTP handlers.
//
// Endpoints called by the bot gateway on behalf of a user:
//   - POST   /users                                 (register on first contact)
//   - GET    /users/{id}
//   - GET    /users/by-telegram/{telegram_id}
//   - PUT    /users/{id}/status                     (admin)
//   - POST   /users/{id}/lead-magnet                (issue the gift, once)
//   - GET    /users/{id}/lead-magnets
//   - POST   /users/{id}/offers/{offer_id}/show
//   - POST   /users/{id}/offers/{offer_id}/click
//   - POST   /users/{id}/warmup                     (start)
//   - DELETE /users/{id}/warmup                     (stop)
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/services"
)

//
// DTOs
//

// RegisterUserRequest is the profile reported by the messenger.
type RegisterUserRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required,gt=0" example:"123456789"`
	Username   string `json:"username"    binding:"max=64"        example:"jane_doe"`
	FirstName  string `json:"first_name"  binding:"max=128"       example:"Jane"`
	LastName   string `json:"last_name"   binding:"max=128"       example:"Doe"`
}

// SetStatusRequest changes a user's lifecycle status.
type SetStatusRequest struct {
	Status domain.UserStatus `json:"status" binding:"required,oneof=active inactive banned pending" example:"inactive"`
}

// UserLeadMagnetsResponse lists the lead magnets issued to a user.
type UserLeadMagnetsResponse struct {
	UserID      string              `json:"user_id"`
	LeadMagnets []domain.LeadMagnet `json:"lead_magnets"`
}

// StopWarmupResponse reports whether a running warm-up was stopped.
type StopWarmupResponse struct {
	Stopped bool `json:"stopped"`
}

//
// Handlers
//

// RegisterUser godoc
// @ID          registerUser
// @Summary     Register a bot user
// @Description Get-or-create by telegram_id. New users are active. Returns 201 on creation, 200 when the user existed.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterUserRequest  true  "Messenger profile"
// @Success     201   {object}  domain.User
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [post]
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "telegram_id required")
		return
	}
	u, created, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		TelegramID: req.TelegramID,
		Username:   strings.TrimSpace(req.Username),
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Produce     json
// @Param       id   path      string  true  "User ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// GetUserByTelegramID godoc
// @ID          getUserByTelegramID
// @Summary     Find a user by messenger id
// @Tags        Users
// @Produce     json
// @Param       telegram_id  path      int  true  "Telegram user id"
// @Success     200          {object}  domain.User
// @Failure     400          {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404          {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/by-telegram/{telegram_id} [get]
func (h *Handlers) GetUserByTelegramID(c *gin.Context) {
	tid, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil || tid <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "telegram_id must be a positive integer")
		return
	}
	u, err := h.users.ByTelegramID(c.Request.Context(), tid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// SetUserStatus godoc
// @ID          setUserStatus
// @Summary     Change a user's status
// @Description Only active users receive follow-ups and warm-up messages.
// @Tags        Users
// @Accept      json
// @Param       X-Admin-Token  header  string                       false  "Admin token"
// @Param       id             path    string                       true   "User ID (UUID)"  format(uuid)
// @Param       body           body    handlers.SetStatusRequest    true   "New status"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/status [put]
func (h *Handlers) SetUserStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be one of active, inactive, banned, pending")
		return
	}
	if err := h.users.SetStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// IssueLeadMagnet godoc
// @ID          issueLeadMagnet
// @Summary     Issue the lead magnet to a user
// @Description Gives the first active lead magnet by sort order, at most once per user. A retried request with the same Idempotency-Key replays the original 201; a new request after issuance gets 409.
// @Tags        Lead magnets
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Retry key"
// @Param       id               path    string  true   "User ID (UUID)"  format(uuid)
// @Success     201  {object}  domain.LeadMagnet
// @Header      201  {string}  Idempotent-Replay  "true when replayed"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already issued"
// @Failure     422  {object}  handlers.ErrorResponse  "No active lead magnet"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/lead-magnet [post]
func (h *Handlers) IssueLeadMagnet(c *gin.Context) {
	if h.replayed(c, func(ctx context.Context, id string) (any, error) { return h.magnets.Get(ctx, id) }) {
		return
	}
	userID := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.users.Get(ctx, userID); err != nil {
		failErr(c, err)
		return
	}
	lm, err := h.magnets.Issue(ctx, userID)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, lm.ID, http.StatusCreated)
	ok(c, http.StatusCreated, lm)
}

// ListUserLeadMagnets godoc
// @ID          listUserLeadMagnets
// @Summary     List lead magnets issued to a user
// @Tags        Lead magnets
// @Produce     json
// @Param       id   path      string  true  "User ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.UserLeadMagnetsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/lead-magnets [get]
func (h *Handlers) ListUserLeadMagnets(c *gin.Context) {
	userID := c.Param("id")
	items, err := h.magnets.UserLeadMagnets(c.Request.Context(), userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UserLeadMagnetsResponse{UserID: userID, LeadMagnets: items})
}

// ShowOffer godoc
// @ID          showOffer
// @Summary     Record that an offer was shown
// @Description Each call records a new showing; unclicked tripwire showings become follow-up candidates after the threshold.
// @Tags        Offers
// @Produce     json
// @Param       id        path      string  true  "User ID (UUID)"   format(uuid)
// @Param       offer_id  path      string  true  "Offer ID (UUID)"  format(uuid)
// @Success     201  {object}  domain.UserProductOffer
// @Failure     404  {object}  handlers.ErrorResponse  "User or offer not found"
// @Router      /users/{id}/offers/{offer_id}/show [post]
func (h *Handlers) ShowOffer(c *gin.Context) {
	sh, err := h.products.Show(c.Request.Context(), c.Param("id"), c.Param("offer_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, sh)
}

// ClickOffer godoc
// @ID          clickOffer
// @Summary     Record a click on a shown offer
// @Tags        Offers
// @Param       id        path  string  true  "User ID (UUID)"   format(uuid)
// @Param       offer_id  path  string  true  "Offer ID (UUID)"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "User or offer not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Offer was never shown"
// @Router      /users/{id}/offers/{offer_id}/click [post]
func (h *Handlers) ClickOffer(c *gin.Context) {
	if err := h.products.Click(c.Request.Context(), c.Param("id"), c.Param("offer_id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// StartWarmup godoc
// @ID          startWarmup
// @Summary     Start the warm-up sequence
// @Description Returns the running warm-up when one exists, otherwise starts one on the active scenario.
// @Tags        Warm-up
// @Produce     json
// @Param       id   path      string  true  "User ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.UserWarmup
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     422  {object}  handlers.ErrorResponse  "No active scenario"
// @Router      /users/{id}/warmup [post]
func (h *Handlers) StartWarmup(c *gin.Context) {
	w, err := h.warmups.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

// StopWarmup godoc
// @ID          stopWarmup
// @Summary     Stop the warm-up sequence
// @Tags        Warm-up
// @Produce     json
// @Param       id   path      string  true  "User ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.StopWarmupResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/warmup [delete]
func (h *Handlers) StopWarmup(c *gin.Context) {
	stopped, err := h.warmups.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StopWarmupResponse{Stopped: stopped})
}
