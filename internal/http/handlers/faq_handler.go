package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/services"
	"github.com/tbourn/go-leadbot-backend/internal/utils"
)

// FAQAnswerResponse carries the ranked answers for a question.
type FAQAnswerResponse struct {
	Query   string              `json:"query"`
	Matches []services.FAQMatch `json:"matches"`
}

// AnswerFAQ godoc
// @ID          answerFAQ
// @Summary     Answer a free-text question from the FAQ
// @Description Ranks active FAQ entries by token overlap with the question and keywords. An empty match list means no entry scored above the threshold.
// @Tags        FAQ
// @Produce     json
// @Param       q      query     string  true   "Question"
// @Param       limit  query     int     false  "Max answers"  minimum(1) maximum(10) default(3)
// @Success     200    {object}  handlers.FAQAnswerResponse
// @Failure     422    {object}  handlers.ErrorResponse  "Empty question"
// @Router      /faq/answer [get]
func (h *Handlers) AnswerFAQ(c *gin.Context) {
	q := c.Query("q")
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 3), 1, 10)
	matches, err := h.faq.Answer(c.Request.Context(), q, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	if matches == nil {
		matches = []services.FAQMatch{}
	}
	ok(c, http.StatusOK, FAQAnswerResponse{Query: q, Matches: matches})
}
