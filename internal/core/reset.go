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

// DefaultCooldown is the canonical minimum interval between non-privileged
// HWID resets. It is a constructor parameter, not ambient state.
const DefaultCooldown = 24 * time.Hour

// ResetManager clears HWID bindings. Non-privileged resets are gated by a
// per-license quota and a cooldown; privileged resets bypass both and do not
// consume quota.
type ResetManager struct {
	store    store.Store
	audit    audit.Emitter
	logger   zerolog.Logger
	cooldown time.Duration
	attempts int
	now      func() time.Time
}

// NewResetManager creates a reset manager. cooldown <= 0 uses
// DefaultCooldown.
func NewResetManager(st store.Store, emitter audit.Emitter, logger zerolog.Logger, cooldown time.Duration) *ResetManager {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &ResetManager{
		store:    st,
		audit:    emitter,
		logger:   logger,
		cooldown: cooldown,
		attempts: defaultVerifyAttempts,
		now:      time.Now,
	}
}

// Reset clears the license's HWID. Quota is checked before cooldown, so a
// license out of resets reports QuotaExceeded even when the cooldown has also
// not elapsed.
func (m *ResetManager) Reset(ctx context.Context, licenseID string, requester Requester) (ResetResult, error) {
	for attempt := 0; attempt < m.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ResetResult{}, err
		}

		lic, err := m.store.FindByID(ctx, licenseID)
		if errors.Is(err, store.ErrNotFound) {
			return m.deny(licenseID, "", requester, ReasonNotFound, 0), nil
		}
		if err != nil {
			return ResetResult{}, fmt.Errorf("%w: find license: %v", ErrStoreUnavailable, err)
		}

		masked := model.MaskKey(lic.Key)
		now := m.now().UTC()

		if !requester.IsPrivileged {
			if lic.HWIDResetCount >= lic.MaxHWIDResets {
				return m.deny(licenseID, masked, requester, ReasonQuotaExceeded, 0), nil
			}
			if lic.LastHWIDReset != nil {
				elapsed := now.Sub(*lic.LastHWIDReset)
				if elapsed < m.cooldown {
					return m.deny(licenseID, masked, requester, ReasonCooldownActive, m.cooldown-elapsed), nil
				}
			}
		}

		previousHWID := ""
		if lic.HWID != nil {
			previousHWID = *lic.HWID
		}

		lic.HWID = nil
		lic.HWIDBoundAt = nil
		lic.LastHWIDReset = &now
		if !requester.IsPrivileged {
			lic.HWIDResetCount++
		}

		err = m.store.CompareAndUpdate(ctx, lic)
		if errors.Is(err, store.ErrVersionConflict) {
			continue // re-read and re-check the gates
		}
		if errors.Is(err, store.ErrNotFound) {
			return m.deny(licenseID, masked, requester, ReasonNotFound, 0), nil
		}
		if err != nil {
			return ResetResult{}, fmt.Errorf("%w: reset hwid: %v", ErrStoreUnavailable, err)
		}

		m.audit.Emit(audit.NewEvent(audit.KindHWIDReset, masked, map[string]any{
			"license_id":    licenseID,
			"previous_hwid": previousHWID,
			"requester":     requester.ID,
			"privileged":    requester.IsPrivileged,
			"reset_count":   lic.HWIDResetCount,
		}))
		return ResetResult{Success: true}, nil
	}

	m.logger.Warn().Str("license_id", licenseID).Msg("reset retries exhausted")
	return ResetResult{}, fmt.Errorf("%w: reset retries exhausted", ErrStoreUnavailable)
}

func (m *ResetManager) deny(licenseID, maskedKey string, requester Requester, reason Reason, retryAfter time.Duration) ResetResult {
	fields := map[string]any{
		"license_id": licenseID,
		"reason":     string(reason),
		"requester":  requester.ID,
		"privileged": requester.IsPrivileged,
	}
	if retryAfter > 0 {
		fields["retry_after"] = retryAfter.String()
	}
	m.audit.Emit(audit.NewEvent(audit.KindHWIDResetDenied, maskedKey, fields))
	return ResetResult{Success: false, Reason: reason, RetryAfter: retryAfter}
}
