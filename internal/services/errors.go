// Package services defines the business logic of the lead-nurturing funnel.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
)

// ErrStore wraps every persistence failure, so callers can tell "nothing
// found" apart from "the query failed".
var ErrStore = errors.New("store failure")

// User-related errors.
var (
	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUser is returned when registration data is unusable
	// (e.g. a zero messenger id).
	ErrInvalidUser = errors.New("invalid user")

	// ErrInvalidStatus is returned for an unknown user status.
	ErrInvalidStatus = errors.New("invalid user status")
)

// Lead magnet errors.
var (
	// ErrAlreadyIssued is returned when the user already received a lead magnet.
	ErrAlreadyIssued = errors.New("lead magnet already issued")

	// ErrNoActiveLeadMagnet is returned when the catalog has no active gift.
	ErrNoActiveLeadMagnet = errors.New("no active lead magnet")

	// ErrLeadMagnetNotFound indicates that no lead magnet matches the id.
	ErrLeadMagnetNotFound = errors.New("lead magnet not found")

	// ErrAmbiguousID is returned when a short id matches several records.
	ErrAmbiguousID = errors.New("short id matches more than one record")

	// ErrInvalidLeadMagnet is returned when create or update input fails
	// validation.
	ErrInvalidLeadMagnet = errors.New("invalid lead magnet")
)

// Offer and warm-up errors.
var (
	// ErrOfferNotFound indicates that the referenced product offer does not exist.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrNoActiveOffer is returned when no active tripwire offer is configured.
	ErrNoActiveOffer = errors.New("no active offer")

	// ErrNotShown is returned when a click is reported for an offer the user
	// was never shown.
	ErrNotShown = errors.New("offer was not shown to user")

	// ErrNoActiveScenario is returned when no warm-up scenario is active.
	ErrNoActiveScenario = errors.New("no active warm-up scenario")

	// ErrEmptyQuery is returned for blank FAQ questions.
	ErrEmptyQuery = errors.New("query is empty")
)

// Mailing errors.
var (
	// ErrMailingNotFound indicates that no mailing matches the id.
	ErrMailingNotFound = errors.New("mailing not found")

	// ErrInvalidMailing is returned when create or update input fails
	// validation.
	ErrInvalidMailing = errors.New("invalid mailing")

	// ErrMailingState is returned when the mailing's status does not allow
	// the requested operation (e.g. editing a mailing that is being sent).
	ErrMailingState = errors.New("operation not allowed in current mailing status")
)

// storeErr wraps a persistence failure with ErrStore and the operation name,
// keeping the original error in the chain.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
