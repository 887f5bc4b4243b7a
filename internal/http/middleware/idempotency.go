// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key handling for the mutating bot and admin
// endpoints. Records are scoped by (subject, scope, key):
//
//	subject  ":id" path parameter, else the authenticated user, else "anonymous"
//	scope    "METHOD /registered/route"
//
// so a Telegram update id reused as a key on two routes never collides. The
// middleware only detects replays; handlers decide how to serve them.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	anonymousSubject  = "anonymous"
	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures key validation. Expiry is the lookup's job.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means 200
	Pattern *regexp.Regexp // nil means ^[A-Za-z0-9._~\-:]+$
}

// IdempotencyLookup reports whether a completed, unexpired result is stored
// for (subject, scope, key). A lookup error is logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, subject, scope, key string, now time.Time) (bool, error)

// IdempotencyValidator validates the Idempotency-Key header and consults
// lookup. Requests without the header pass through untouched; a malformed key
// is rejected with 400 bad_idempotency_key. On a hit the request is flagged as
// a replay and exempted from rate limiting.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": requestIDOf(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			hit, err := lookup(c.Request.Context(), IdempotencySubject(c), IdempotencyScope(c), key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed")
			case hit:
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// IsReplay reports whether a stored result exists for this request's key.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// IdempotencySubject returns the owner of the request's idempotency record.
// Handlers saving a record must use the same value.
func IdempotencySubject(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return userIDFromCtx(c)
}

// IdempotencyScope returns "METHOD route", using the raw path when no route
// matched.
func IdempotencyScope(c *gin.Context) string {
	return c.Request.Method + " " + routeOf(c)
}

// userIDFromCtx returns the "userID" set by authentication middleware, or
// anonymousSubject.
func userIDFromCtx(c *gin.Context) string {
	if s, _ := c.Value("userID").(string); s != "" {
		return s
	}
	return anonymousSubject
}
