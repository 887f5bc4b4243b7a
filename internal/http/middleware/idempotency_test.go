package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	subject, scope, key string
	now                 time.Time
}

// recordingLookup returns a lookup answering hit/err and the calls it saw.
func recordingLookup(hit bool, err error) (IdempotencyLookup, *[]lookupCall) {
	var calls []lookupCall
	return func(_ context.Context, subject, scope, key string, now time.Time) (bool, error) {
		calls = append(calls, lookupCall{subject, scope, key, now})
		return hit, err
	}, &calls
}

type idemSeen struct {
	key    string
	hasKey bool
	replay bool
	bypass bool
}

func idemEngine(opts IdempotencyOptions, lookup IdempotencyLookup, pre ...gin.HandlerFunc) (*gin.Engine, *idemSeen) {
	gin.SetMode(gin.TestMode)
	seen := &idemSeen{}
	r := gin.New()
	r.Use(pre...)
	r.Use(IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		seen.key, seen.hasKey = GetIdempotencyKey(c)
		seen.replay, seen.bypass = IsReplay(c), IsRateBypass(c)
		c.Status(http.StatusCreated)
	}
	r.POST("/users/:id/lead-magnet", h)
	r.POST("/lead-magnets", h)
	return r, seen
}

func postWithKey(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_WithoutHeaderSkipsLookup(t *testing.T) {
	lookup, calls := recordingLookup(true, nil)
	r, seen := idemEngine(IdempotencyOptions{}, lookup)

	w := postWithKey(r, "/users/u1/lead-magnet", "")
	if w.Code != http.StatusCreated || seen.hasKey || seen.replay {
		t.Fatalf("code=%d seen=%+v", w.Code, seen)
	}
	if len(*calls) != 0 {
		t.Fatalf("lookup called %d times", len(*calls))
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long for default", IdempotencyOptions{}, strings.Repeat("k", 201)},
		{"too long for custom", IdempotencyOptions{MaxLen: 4}, "tg-77"},
		{"bad characters", IdempotencyOptions{}, "update 77"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^\d+$`)}, "tg-77"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookup, calls := recordingLookup(false, nil)
			r, _ := idemEngine(tc.opts, lookup)
			w := postWithKey(r, "/users/u1/lead-magnet", tc.key)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["code"] != "bad_idempotency_key" {
				t.Fatalf("body = %s (%v)", w.Body.String(), err)
			}
			if len(*calls) != 0 {
				t.Fatalf("lookup must not run for a rejected key")
			}
		})
	}
}

func TestIdempotencyValidator_MissUsesPathSubjectAndRouteScope(t *testing.T) {
	lookup, calls := recordingLookup(false, nil)
	r, seen := idemEngine(IdempotencyOptions{}, lookup)

	w := postWithKey(r, "/users/u42/lead-magnet", "tg-update:981")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if !seen.hasKey || seen.key != "tg-update:981" || seen.replay || seen.bypass {
		t.Fatalf("seen = %+v", seen)
	}
	if len(*calls) != 1 {
		t.Fatalf("calls = %v", *calls)
	}
	got := (*calls)[0]
	if got.subject != "u42" || got.scope != "POST /users/:id/lead-magnet" || got.key != "tg-update:981" {
		t.Fatalf("lookup args = %+v", got)
	}
	if got.now.IsZero() || got.now.Location() != time.UTC {
		t.Fatalf("now must be set in UTC, got %v", got.now)
	}
}

func TestIdempotencyValidator_HitFlagsReplayForAdmin(t *testing.T) {
	lookup, calls := recordingLookup(true, nil)
	r, seen := idemEngine(IdempotencyOptions{}, lookup, AdminToken("s3cret"))

	req := httptest.NewRequest(http.MethodPost, "/lead-magnets", nil)
	req.Header.Set(HeaderAdminToken, "s3cret")
	req.Header.Set(HeaderIdempotencyKey, "create-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if !seen.replay || !seen.bypass {
		t.Fatalf("hit must flag replay and bypass: %+v", seen)
	}
	if (*calls)[0].subject != adminSubject || (*calls)[0].scope != "POST /lead-magnets" {
		t.Fatalf("lookup args = %+v", (*calls)[0])
	}
}

func TestIdempotencyValidator_LookupErrorIsAMiss(t *testing.T) {
	buf := captureLogger(t)
	lookup, _ := recordingLookup(true, errors.New("database is locked"))
	r, seen := idemEngine(IdempotencyOptions{}, lookup)

	w := postWithKey(r, "/users/u1/lead-magnet", "k1")
	if w.Code != http.StatusCreated || seen.replay || seen.bypass || !seen.hasKey {
		t.Fatalf("code=%d seen=%+v", w.Code, seen)
	}
	if !strings.Contains(buf.String(), "idempotency lookup failed") {
		t.Fatalf("lookup error not logged: %s", buf.String())
	}
}

func TestIdempotencyHelpers_IgnoreForeignValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/unrouted", nil)

	c.Set(ctxKeyIdemKey, 123)
	c.Set(ctxKeyIdemReplay, "yes")
	c.Set("userID", 42)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must read as false")
	}
	if got := IdempotencySubject(c); got != anonymousSubject {
		t.Fatalf("subject = %q", got)
	}
	if got := IdempotencyScope(c); got != "GET /unrouted" {
		t.Fatalf("scope = %q", got)
	}
}
