// Package services – LeadMagnetService
//
// This file implements the lead magnet catalog and the one-gift-per-user
// issuance rule. Issuance runs in a single transaction: the existence check,
// the selection of the first active gift and the insert commit together, and
// the unique index on user_lead_magnets.user_id turns any race into
// ErrAlreadyIssued.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

// ShortIDLen is the length of the abbreviated id accepted by the Get lookups.
const ShortIDLen = 8

var shortIDRE = regexp.MustCompile(`^[0-9a-fA-F-]{8}$`)

// DefaultLeadMagnet is the gift created by EnsureDefault.
var DefaultLeadMagnet = domain.LeadMagnet{
	Name:        "Free 30-day planner",
	Description: "Daily planner for the 30-day program",
	Type:        domain.LeadMagnetGoogleSheet,
	FileURL:     "https://docs.google.com/spreadsheets/d/planner",
	MessageText: "🎁 <b>Your free 30-day planner</b>\n\nTrack one goal a day and see how far you get in a month.",
	IsActive:    true,
	SortOrder:   0,
}

// LeadMagnetService manages the lead magnet catalog and its issuance.
type LeadMagnetService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewLeadMagnetService returns a service using the wall clock.
func NewLeadMagnetService(db *gorm.DB) *LeadMagnetService {
	return &LeadMagnetService{DB: db, Now: time.Now}
}

func (s *LeadMagnetService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// LeadMagnetCreate is the input of Create.
type LeadMagnetCreate struct {
	Name        string                `json:"name"         binding:"required,max=255"`
	Description string                `json:"description"`
	Type        domain.LeadMagnetType `json:"type"         binding:"required,oneof=pdf google_sheet link text"`
	FileURL     string                `json:"file_url"     binding:"omitempty,url,max=500"`
	MessageText string                `json:"message_text"`
	IsActive    *bool                 `json:"is_active"`
	SortOrder   int                   `json:"sort_order"`
}

// LeadMagnetUpdate is a partial update; nil fields are left untouched.
type LeadMagnetUpdate struct {
	Name        *string                `json:"name"         binding:"omitempty,max=255"`
	Description *string                `json:"description"`
	Type        *domain.LeadMagnetType `json:"type"         binding:"omitempty,oneof=pdf google_sheet link text"`
	FileURL     *string                `json:"file_url"     binding:"omitempty,max=500"`
	MessageText *string                `json:"message_text"`
	IsActive    *bool                  `json:"is_active"`
	SortOrder   *int                   `json:"sort_order"`
}

// fields returns the column/value pairs to write.
func (u LeadMagnetUpdate) fields() map[string]any {
	m := map[string]any{}
	if u.Name != nil {
		m["name"] = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		m["description"] = *u.Description
	}
	if u.Type != nil {
		m["type"] = *u.Type
	}
	if u.FileURL != nil {
		m["file_url"] = *u.FileURL
	}
	if u.MessageText != nil {
		m["message_text"] = *u.MessageText
	}
	if u.IsActive != nil {
		m["is_active"] = *u.IsActive
	}
	if u.SortOrder != nil {
		m["sort_order"] = *u.SortOrder
	}
	return m
}

// Issue gives userID the first active lead magnet by sort order.
//
// Errors:
//   - ErrAlreadyIssued if the user already holds a lead magnet.
//   - ErrNoActiveLeadMagnet if the catalog has no active entry.
//   - ErrStore-wrapped errors on persistence failure (the transaction is
//     rolled back).
func (s *LeadMagnetService) Issue(ctx context.Context, userID string) (*domain.LeadMagnet, error) {
	ctx, span := otel.Tracer("services/LeadMagnetService").Start(ctx, "Issue",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	var issued *domain.LeadMagnet
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetUserLeadMagnet(ctx, tx, userID); err == nil {
			return ErrAlreadyIssued
		} else if !errors.Is(err, repo.ErrNotFound) {
			return storeErr("check issuance", err)
		}

		lm, err := repo.FirstActiveLeadMagnet(ctx, tx)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNoActiveLeadMagnet
		}
		if err != nil {
			return storeErr("select lead magnet", err)
		}

		rec := &domain.UserLeadMagnet{UserID: userID, LeadMagnetID: lm.ID, IssuedAt: s.now()}
		if err := repo.CreateUserLeadMagnet(ctx, tx, rec); err != nil {
			if repo.IsUniqueViolation(err) {
				return ErrAlreadyIssued
			}
			return storeErr("record issuance", err)
		}
		issued = lm
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("lead_magnet.id", issued.ID))
	return issued, nil
}

// HasLeadMagnet reports whether userID already received a lead magnet.
func (s *LeadMagnetService) HasLeadMagnet(ctx context.Context, userID string) (bool, error) {
	_, err := repo.GetUserLeadMagnet(ctx, s.DB, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return false, storeErr("check issuance", err)
}

// UserLeadMagnets returns the lead magnets issued to userID, most recent first.
func (s *LeadMagnetService) UserLeadMagnets(ctx context.Context, userID string) ([]domain.LeadMagnet, error) {
	out, err := repo.ListUserLeadMagnets(ctx, s.DB, userID)
	if err != nil {
		return nil, storeErr("list user lead magnets", err)
	}
	return out, nil
}

// ListActive returns active lead magnets by sort order.
func (s *LeadMagnetService) ListActive(ctx context.Context) ([]domain.LeadMagnet, error) {
	out, err := repo.ListActiveLeadMagnets(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list active lead magnets", err)
	}
	return out, nil
}

// ListAll returns the whole catalog by sort order, then creation time.
func (s *LeadMagnetService) ListAll(ctx context.Context) ([]domain.LeadMagnet, error) {
	out, err := repo.ListLeadMagnets(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list lead magnets", err)
	}
	return out, nil
}

// ListByType returns active lead magnets of type t.
func (s *LeadMagnetService) ListByType(ctx context.Context, t domain.LeadMagnetType) ([]domain.LeadMagnet, error) {
	if !t.Valid() {
		return nil, ErrInvalidLeadMagnet
	}
	out, err := repo.ListLeadMagnetsByType(ctx, s.DB, t)
	if err != nil {
		return nil, storeErr("list lead magnets by type", err)
	}
	return out, nil
}

// Get resolves id to a lead magnet. An 8-character id is matched as a
// prefix of the full id; any other length must match exactly.
func (s *LeadMagnetService) Get(ctx context.Context, id string) (*domain.LeadMagnet, error) {
	return s.get(ctx, s.DB, id)
}

func (s *LeadMagnetService) get(ctx context.Context, db *gorm.DB, id string) (*domain.LeadMagnet, error) {
	id = strings.TrimSpace(id)
	if len(id) == ShortIDLen {
		if !shortIDRE.MatchString(id) {
			return nil, ErrLeadMagnetNotFound
		}
		found, err := repo.FindLeadMagnetsByPrefix(ctx, db, strings.ToLower(id), 2)
		if err != nil {
			return nil, storeErr("find lead magnet", err)
		}
		switch len(found) {
		case 0:
			return nil, ErrLeadMagnetNotFound
		case 1:
			return &found[0], nil
		default:
			return nil, ErrAmbiguousID
		}
	}
	lm, err := repo.GetLeadMagnet(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrLeadMagnetNotFound
	}
	if err != nil {
		return nil, storeErr("get lead magnet", err)
	}
	return lm, nil
}

// Create adds a lead magnet. IsActive defaults to true when omitted.
func (s *LeadMagnetService) Create(ctx context.Context, in LeadMagnetCreate) (*domain.LeadMagnet, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || !in.Type.Valid() {
		return nil, ErrInvalidLeadMagnet
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	lm, err := repo.CreateLeadMagnet(ctx, s.DB, &domain.LeadMagnet{
		Name:        name,
		Description: in.Description,
		Type:        in.Type,
		FileURL:     strings.TrimSpace(in.FileURL),
		MessageText: in.MessageText,
		IsActive:    active,
		SortOrder:   in.SortOrder,
	})
	if err != nil {
		return nil, storeErr("create lead magnet", err)
	}
	return lm, nil
}

// Update merges the non-nil fields of in into the lead magnet and returns
// the updated row.
func (s *LeadMagnetService) Update(ctx context.Context, id string, in LeadMagnetUpdate) (*domain.LeadMagnet, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, ErrInvalidLeadMagnet
	}
	if in.Type != nil && !in.Type.Valid() {
		return nil, ErrInvalidLeadMagnet
	}
	var out *domain.LeadMagnet
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lm, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if f := in.fields(); len(f) > 0 {
			if err := repo.UpdateLeadMagnetFields(ctx, tx, lm.ID, f); err != nil {
				return storeErr("update lead magnet", err)
			}
		}
		out, err = repo.GetLeadMagnet(ctx, tx, lm.ID)
		if err != nil {
			return storeErr("reload lead magnet", err)
		}
		return nil
	})
	return out, err
}

// Toggle flips the active flag and returns the updated row.
func (s *LeadMagnetService) Toggle(ctx context.Context, id string) (*domain.LeadMagnet, error) {
	var out *domain.LeadMagnet
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lm, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := repo.ToggleLeadMagnet(ctx, tx, lm.ID); err != nil {
			return storeErr("toggle lead magnet", err)
		}
		out, err = repo.GetLeadMagnet(ctx, tx, lm.ID)
		if err != nil {
			return storeErr("reload lead magnet", err)
		}
		return nil
	})
	return out, err
}

// Delete removes the lead magnet and all its issuance records atomically.
func (s *LeadMagnetService) Delete(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("services/LeadMagnetService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("lead_magnet.id", id)))
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lm, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteLeadMagnet(ctx, tx, lm.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrLeadMagnetNotFound
			}
			return storeErr("delete lead magnet", err)
		}
		return nil
	})
}

// MagnetIssued is the issuance count of one active lead magnet.
type MagnetIssued struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Issued int64  `json:"issued"`
}

// LeadMagnetStats aggregates catalog and issuance numbers.
type LeadMagnetStats struct {
	TotalIssued       int64          `json:"total_issued"`
	UniqueUsers       int64          `json:"unique_users"`
	ByMagnet          []MagnetIssued `json:"by_magnet"`
	ActiveLeadMagnets int            `json:"active_lead_magnets"`
}

// Stats returns issuance totals, per-active-magnet counts and the number of
// active lead magnets.
func (s *LeadMagnetService) Stats(ctx context.Context) (*LeadMagnetStats, error) {
	total, uniq, err := repo.IssuanceTotals(ctx, s.DB)
	if err != nil {
		return nil, storeErr("issuance totals", err)
	}
	per, err := repo.IssuedPerActiveMagnet(ctx, s.DB)
	if err != nil {
		return nil, storeErr("issuance per magnet", err)
	}
	out := &LeadMagnetStats{TotalIssued: total, UniqueUsers: uniq, ByMagnet: make([]MagnetIssued, 0, len(per))}
	for _, p := range per {
		out.ByMagnet = append(out.ByMagnet, MagnetIssued{ID: p.ID, Name: p.Name, Issued: p.Issued})
	}
	out.ActiveLeadMagnets = len(per)
	return out, nil
}

// IssuedBetween counts issuances in [from, to), optionally for one type.
func (s *LeadMagnetService) IssuedBetween(ctx context.Context, from, to time.Time, t domain.LeadMagnetType) (int64, error) {
	if t != "" && !t.Valid() {
		return 0, ErrInvalidLeadMagnet
	}
	n, err := repo.CountIssuedBetween(ctx, s.DB, from.UTC(), to.UTC(), t)
	if err != nil {
		return 0, storeErr("count issued", err)
	}
	return n, nil
}

// EnsureDefault creates DefaultLeadMagnet unless a lead magnet with the same
// name exists. It returns the existing or created row.
func (s *LeadMagnetService) EnsureDefault(ctx context.Context) (*domain.LeadMagnet, error) {
	lm, err := repo.GetLeadMagnetByName(ctx, s.DB, DefaultLeadMagnet.Name)
	if err == nil {
		return lm, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, storeErr("get default lead magnet", err)
	}
	def := DefaultLeadMagnet
	created, err := repo.CreateLeadMagnet(ctx, s.DB, &def)
	if err != nil {
		return nil, storeErr("create default lead magnet", err)
	}
	return created, nil
}

// Catalog returns the catalog size and last modification time, used for
// conditional GETs.
func (s *LeadMagnetService) Catalog(ctx context.Context) (int64, *time.Time, error) {
	n, at, err := repo.LeadMagnetsStats(ctx, s.DB)
	if err != nil {
		return 0, nil, storeErr("catalog stats", err)
	}
	return n, at, nil
}
