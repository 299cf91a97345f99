package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hexrift/licensor/internal/audit"
	"github.com/hexrift/licensor/internal/model"
	"github.com/hexrift/licensor/internal/store"
)

// LicenseService covers the staff-facing lifecycle operations: lookup,
// listing, ban/unban, activate/deactivate, owner assignment, and deletion.
// Mutations go through the same conditional-update path as the engine and
// emit one audit event each.
type LicenseService struct {
	store    store.Store
	audit    audit.Emitter
	logger   zerolog.Logger
	attempts int
	now      func() time.Time
}

// NewLicenseService creates a staff license service.
func NewLicenseService(st store.Store, emitter audit.Emitter, logger zerolog.Logger) *LicenseService {
	return &LicenseService{
		store:    st,
		audit:    emitter,
		logger:   logger,
		attempts: defaultVerifyAttempts,
		now:      time.Now,
	}
}

// GetByID retrieves a license by ID.
func (s *LicenseService) GetByID(ctx context.Context, id string) (*model.License, error) {
	return s.store.FindByID(ctx, id)
}

// GetByKey retrieves a license by its key.
func (s *LicenseService) GetByKey(ctx context.Context, key string) (*model.License, error) {
	return s.store.FindByKey(ctx, key)
}

// List returns licenses matching the filter with cursor pagination.
func (s *LicenseService) List(ctx context.Context, filter store.ListFilter) ([]model.License, bool, error) {
	return s.store.List(ctx, filter)
}

// Ban marks the license banned with a reason. Banning does not deactivate;
// the two flags are independent.
func (s *LicenseService) Ban(ctx context.Context, id, reason string) (*model.License, error) {
	return s.mutate(ctx, id, audit.KindLicenseBanned, map[string]any{"ban_reason": reason}, func(lic *model.License) {
		lic.IsBanned = true
		lic.BanReason = &reason
	})
}

// Unban clears the ban flag and reason.
func (s *LicenseService) Unban(ctx context.Context, id string) (*model.License, error) {
	return s.mutate(ctx, id, audit.KindLicenseUnbanned, nil, func(lic *model.License) {
		lic.IsBanned = false
		lic.BanReason = nil
	})
}

// Activate re-enables a deactivated license.
func (s *LicenseService) Activate(ctx context.Context, id string) (*model.License, error) {
	return s.mutate(ctx, id, audit.KindLicenseActivated, nil, func(lic *model.License) {
		lic.IsActive = true
	})
}

// Deactivate disables the license without touching ban state or the binding.
func (s *LicenseService) Deactivate(ctx context.Context, id string) (*model.License, error) {
	return s.mutate(ctx, id, audit.KindLicenseDisabled, nil, func(lic *model.License) {
		lic.IsActive = false
	})
}

// AssignOwner sets or clears the owning account reference.
func (s *LicenseService) AssignOwner(ctx context.Context, id string, owner *string) (*model.License, error) {
	fields := map[string]any{}
	if owner != nil {
		fields["owner_ref"] = *owner
	}
	return s.mutate(ctx, id, audit.KindOwnerAssigned, fields, func(lic *model.License) {
		lic.OwnerRef = owner
	})
}

// Delete removes the license entirely and emits a deletion event.
func (s *LicenseService) Delete(ctx context.Context, id string) error {
	lic, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Emit(audit.NewEvent(audit.KindLicenseDeleted, model.MaskKey(lic.Key), map[string]any{
		"license_id": id,
		"product":    lic.Product,
	}))
	return nil
}

// mutate applies fn under the conditional-update loop and emits the event
// once the write commits.
func (s *LicenseService) mutate(ctx context.Context, id string, kind audit.Kind, fields map[string]any, fn func(*model.License)) (*model.License, error) {
	for attempt := 0; attempt < s.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lic, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		fn(lic)

		err = s.store.CompareAndUpdate(ctx, lic)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if fields == nil {
			fields = map[string]any{}
		}
		fields["license_id"] = id
		s.audit.Emit(audit.NewEvent(kind, model.MaskKey(lic.Key), fields))
		return lic, nil
	}
	return nil, fmt.Errorf("%w: update retries exhausted", ErrStoreUnavailable)
}
