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

const defaultVerifyAttempts = 3

// Engine decides verify/bind outcomes. It is safe for concurrent use: every
// call re-reads the license and all writes are version-conditional, so two
// concurrent first-time verifications can never both bind.
type Engine struct {
	store    store.Store
	audit    audit.Emitter
	logger   zerolog.Logger
	attempts int
	now      func() time.Time
}

// NewEngine creates a verification engine. attempts bounds the internal
// retry loop on version conflicts; <= 0 uses the default of 3.
func NewEngine(st store.Store, emitter audit.Emitter, logger zerolog.Logger, attempts int) *Engine {
	if attempts <= 0 {
		attempts = defaultVerifyAttempts
	}
	return &Engine{
		store:    st,
		audit:    emitter,
		logger:   logger,
		attempts: attempts,
		now:      time.Now,
	}
}

// Verify runs the fixed decision order: not-found, product mismatch, ban,
// expiry, inactive, then bind / match / mismatch. The order is deliberate:
// a banned license with the wrong product reports the product mismatch.
//
// When the license is unbound, the bind is a conditional update; if a
// concurrent caller binds first the conflict is retried from a fresh read,
// which then sees the winner's HWID.
func (e *Engine) Verify(ctx context.Context, key, hwid, product string) (VerifyResult, error) {
	key = model.CanonicalKey(key)
	masked := model.MaskKey(key)

	for attempt := 0; attempt < e.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return VerifyResult{}, err
		}

		lic, err := e.store.FindByKey(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return e.reject(masked, hwid, product, ReasonNotFound, ""), nil
		}
		if err != nil {
			return VerifyResult{}, fmt.Errorf("%w: find license: %v", ErrStoreUnavailable, err)
		}

		if lic.Product != product {
			return e.reject(masked, hwid, product, ReasonProductMismatch, ""), nil
		}
		if lic.IsBanned {
			banReason := ""
			if lic.BanReason != nil {
				banReason = *lic.BanReason
			}
			return e.reject(masked, hwid, product, ReasonBanned, banReason), nil
		}
		now := e.now().UTC()
		if lic.IsExpired(now) {
			return e.reject(masked, hwid, product, ReasonExpired, ""), nil
		}
		if !lic.IsActive {
			return e.reject(masked, hwid, product, ReasonInactive, ""), nil
		}

		switch {
		case lic.HWID == nil:
			lic.HWID = &hwid
			lic.HWIDBoundAt = &now
			lic.LastVerifiedAt = &now
			err = e.store.CompareAndUpdate(ctx, lic)
			if errors.Is(err, store.ErrVersionConflict) {
				continue // someone else bound first, re-evaluate
			}
			if errors.Is(err, store.ErrNotFound) {
				return e.reject(masked, hwid, product, ReasonNotFound, ""), nil
			}
			if err != nil {
				return VerifyResult{}, fmt.Errorf("%w: bind hwid: %v", ErrStoreUnavailable, err)
			}
			e.audit.Emit(audit.NewEvent(audit.KindLicenseBound, masked, map[string]any{
				"product": product,
				"hwid":    hwid,
			}))
			return VerifyResult{Valid: true, NewBinding: true, License: lic}, nil

		case *lic.HWID == hwid:
			lic.LastVerifiedAt = &now
			err = e.store.CompareAndUpdate(ctx, lic)
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			if errors.Is(err, store.ErrNotFound) {
				return e.reject(masked, hwid, product, ReasonNotFound, ""), nil
			}
			if err != nil {
				return VerifyResult{}, fmt.Errorf("%w: record verify: %v", ErrStoreUnavailable, err)
			}
			e.audit.Emit(audit.NewEvent(audit.KindLicenseVerified, masked, map[string]any{
				"product": product,
				"hwid":    hwid,
			}))
			return VerifyResult{Valid: true, NewBinding: false, License: lic}, nil

		default:
			return e.reject(masked, hwid, product, ReasonHWIDMismatch, ""), nil
		}
	}

	e.logger.Warn().Str("key", masked).Int("attempts", e.attempts).Msg("verify retries exhausted")
	return VerifyResult{}, fmt.Errorf("%w: verify retries exhausted", ErrStoreUnavailable)
}

func (e *Engine) reject(maskedKey, hwid, product string, reason Reason, banReason string) VerifyResult {
	fields := map[string]any{
		"reason":  string(reason),
		"product": product,
		"hwid":    hwid,
	}
	if banReason != "" {
		fields["ban_reason"] = banReason
	}
	e.audit.Emit(audit.NewEvent(audit.KindVerifyRejected, maskedKey, fields))
	return VerifyResult{Valid: false, Reason: reason, BanReason: banReason}
}
