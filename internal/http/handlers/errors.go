// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics, domain codes name the business rule that
// refused the request.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_issued",
//	  "message": "lead magnet already issued"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAlreadyIssued = "already_issued"
	ErrCodeAmbiguousID   = "ambiguous_id"
	ErrCodeNotShown      = "not_shown"
	ErrCodeNoActive      = "nothing_active"
	ErrCodeInvalid       = "validation_failed"
	ErrCodeMailingState  = "mailing_state"
)

// statusOf maps a service error to an HTTP status and code. Unknown errors,
// store failures included, are 500.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrLeadMagnetNotFound),
		errors.Is(err, services.ErrOfferNotFound),
		errors.Is(err, services.ErrMailingNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrAlreadyIssued):
		return http.StatusConflict, ErrCodeAlreadyIssued
	case errors.Is(err, services.ErrAmbiguousID):
		return http.StatusConflict, ErrCodeAmbiguousID
	case errors.Is(err, services.ErrNotShown):
		return http.StatusConflict, ErrCodeNotShown
	case errors.Is(err, services.ErrMailingState):
		return http.StatusConflict, ErrCodeMailingState
	case errors.Is(err, services.ErrNoActiveLeadMagnet),
		errors.Is(err, services.ErrNoActiveScenario),
		errors.Is(err, services.ErrNoActiveOffer):
		return http.StatusUnprocessableEntity, ErrCodeNoActive
	case errors.Is(err, services.ErrInvalidLeadMagnet),
		errors.Is(err, services.ErrInvalidMailing),
		errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrEmptyQuery):
		return http.StatusUnprocessableEntity, ErrCodeInvalid
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// failErr writes the envelope for a service error. Sentinel messages are safe
// to show; anything mapped to 500 is logged and replaced by a generic message.
func failErr(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg := "internal server error"
		if status == http.StatusServiceUnavailable {
			msg = "request cancelled or timed out"
		}
		fail(c, status, code, msg)
		return
	}
	fail(c, status, code, err.Error())
}
