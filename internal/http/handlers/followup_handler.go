// Delivery HTTP handlers (admin).
//
//   - GET  /followups/eligible   (?hours=48)
//   - POST /followups/run        (?hours=48, ?dry_run=true)
//   - POST /warmups/run
//   - GET  /warmups/stats
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/services"
	"github.com/tbourn/go-leadbot-backend/internal/sysutil"
	"github.com/tbourn/go-leadbot-backend/internal/utils"
)

// maxThresholdHours bounds ?hours to one year.
const maxThresholdHours = 24 * 365

// CandidateDTO is one (user, offer, showing) due a reminder.
type CandidateDTO struct {
	ShowingID  string    `json:"showing_id"`
	UserID     string    `json:"user_id"`
	TelegramID int64     `json:"telegram_id"`
	OfferID    string    `json:"offer_id"`
	ProductID  string    `json:"product_id"`
	ShownAt    time.Time `json:"shown_at"`
}

// EligibleResponse lists follow-up candidates for a threshold.
type EligibleResponse struct {
	ThresholdHours float64        `json:"threshold_hours"`
	Candidates     []CandidateDTO `json:"candidates"`
}

// RunResponse is the report of a manual delivery pass.
type RunResponse struct {
	services.DeliveryReport
	DryRun bool `json:"dry_run"`
}

// thresholdFrom reads ?hours, bounded to [1m, maxThresholdHours], defaulting to
// the configured threshold.
func (h *Handlers) thresholdFrom(c *gin.Context) time.Duration {
	d := utils.HoursDefault(c.Query("hours"), h.threshold)
	return utils.ClampDuration(d, time.Minute, maxThresholdHours*time.Hour)
}

// EligibleFollowUps godoc
// @ID          eligibleFollowUps
// @Summary     List follow-up candidates
// @Description Users shown the tripwire offer at least ?hours ago who did not click and got no reminder yet. Read-only.
// @Tags        Follow-ups
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       hours          query   number  false  "Threshold in hours"  default(48)
// @Success     200  {object}  handlers.EligibleResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /followups/eligible [get]
func (h *Handlers) EligibleFollowUps(c *gin.Context) {
	th := h.thresholdFrom(c)
	cands, err := h.followups.Eligible(c.Request.Context(), th)
	if err != nil {
		failErr(c, err)
		return
	}
	out := EligibleResponse{ThresholdHours: th.Hours(), Candidates: make([]CandidateDTO, 0, len(cands))}
	for _, cd := range cands {
		out.Candidates = append(out.Candidates, CandidateDTO{
			ShowingID:  cd.ShowingID,
			UserID:     cd.UserID,
			TelegramID: cd.TelegramID,
			OfferID:    cd.OfferID,
			ProductID:  cd.ProductID,
			ShownAt:    cd.ShownAt,
		})
	}
	ok(c, http.StatusOK, out)
}

// RunFollowUps godoc
// @ID          runFollowUps
// @Summary     Run a follow-up delivery pass now
// @Description Same pass as the scheduler. With dry_run only the candidates are counted and nothing is sent.
// @Tags        Follow-ups
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       hours          query   number  false  "Threshold in hours"  default(48)
// @Param       dry_run        query   bool    false  "Count only"
// @Success     200  {object}  handlers.RunResponse
// @Failure     503  {object}  handlers.ErrorResponse  "No delivery runner configured"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /followups/run [post]
func (h *Handlers) RunFollowUps(c *gin.Context) {
	th := h.thresholdFrom(c)
	ctx := c.Request.Context()

	if sysutil.IsTruthy(c.Query("dry_run")) {
		cands, err := h.followups.Eligible(ctx, th)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, RunResponse{DeliveryReport: services.DeliveryReport{Candidates: len(cands)}, DryRun: true})
		return
	}
	if h.jobs == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "delivery runner not configured")
		return
	}
	rep, err := h.jobs.RunFollowUps(ctx, th)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RunResponse{DeliveryReport: rep})
}

// RunWarmups godoc
// @ID          runWarmups
// @Summary     Run a warm-up delivery pass now
// @Tags        Warm-up
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Success     200  {object}  handlers.RunResponse
// @Failure     503  {object}  handlers.ErrorResponse  "No delivery runner configured"
// @Router      /warmups/run [post]
func (h *Handlers) RunWarmups(c *gin.Context) {
	if h.jobs == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "delivery runner not configured")
		return
	}
	rep, err := h.jobs.RunWarmups(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RunResponse{DeliveryReport: rep})
}

// WarmupStats godoc
// @ID          warmupStats
// @Summary     Warm-up counts
// @Tags        Warm-up
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Success     200  {object}  services.WarmupStats
// @Router      /warmups/stats [get]
func (h *Handlers) WarmupStats(c *gin.Context) {
	st, err := h.warmups.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
