package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/http/middleware"
)

// HeaderIdempotentReplay marks responses served from a stored outcome.
const HeaderIdempotentReplay = "Idempotent-Replay"

// replayed serves the stored outcome of a request the middleware flagged as a
// replay, loading the resource through load. It reports whether a response
// was written; on any miss the request is processed normally.
func (h *Handlers) replayed(c *gin.Context, load func(ctx context.Context, id string) (any, error)) bool {
	if h.idem == nil || !middleware.IsReplay(c) {
		return false
	}
	key, present := middleware.GetIdempotencyKey(c)
	if !present {
		return false
	}
	ctx := c.Request.Context()
	id, status, found, err := h.idem.Lookup(ctx, middleware.IdempotencySubject(c), middleware.IdempotencyScope(c), key)
	if err != nil || !found {
		return false
	}
	res, err := load(ctx, id)
	if err != nil {
		return false
	}
	c.Header(HeaderIdempotentReplay, "true")
	ok(c, status, res)
	return true
}

// remember stores the outcome of a successful unsafe request carrying an
// Idempotency-Key. A failed save is logged; the response is unaffected.
func (h *Handlers) remember(c *gin.Context, resourceID string, status int) {
	if h.idem == nil {
		return
	}
	key, present := middleware.GetIdempotencyKey(c)
	if !present {
		return
	}
	err := h.idem.Save(c.Request.Context(), middleware.IdempotencySubject(c), middleware.IdempotencyScope(c), key, resourceID, status)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("idempotency save failed")
	}
}
