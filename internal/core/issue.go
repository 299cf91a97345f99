package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hexrift/licensor/internal/audit"
	"github.com/hexrift/licensor/internal/keygen"
	"github.com/hexrift/licensor/internal/model"
	"github.com/hexrift/licensor/internal/platform"
	"github.com/hexrift/licensor/internal/store"
)

const defaultKeyRetries = 5

// Issuer creates licenses in batches. Items are independent: each insert is
// atomic on its own and a failed item never rolls back its siblings.
type Issuer struct {
	store            store.Store
	audit            audit.Emitter
	logger           zerolog.Logger
	format           keygen.Format
	keyRetries       int
	defaultMaxResets int
	now              func() time.Time
}

// NewIssuer creates a batch issuance manager. defaultMaxResets seeds each new
// license's non-privileged HWID reset quota.
func NewIssuer(st store.Store, emitter audit.Emitter, logger zerolog.Logger, format keygen.Format, defaultMaxResets int) *Issuer {
	return &Issuer{
		store:            st,
		audit:            emitter,
		logger:           logger,
		format:           format,
		keyRetries:       defaultKeyRetries,
		defaultMaxResets: defaultMaxResets,
		now:              time.Now,
	}
}

// IssueBatch creates quantity licenses for the product. durationDays nil
// means the licenses never expire; owner nil leaves them unassigned. The
// result reports every created license and every per-index failure.
func (i *Issuer) IssueBatch(ctx context.Context, product string, quantity int, durationDays *int, owner *string) (BatchResult, error) {
	if quantity <= 0 {
		return BatchResult{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	var result BatchResult
	for idx := 0; idx < quantity; idx++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		lic, err := i.issueOne(ctx, product, durationDays, owner)
		if err != nil {
			result.Errors = append(result.Errors, IssueError{Index: idx, Err: err})
			continue
		}
		result.Licenses = append(result.Licenses, IssuedLicense{Index: idx, License: lic})

		i.audit.Emit(audit.NewEvent(audit.KindLicenseIssued, model.MaskKey(lic.Key), map[string]any{
			"license_id": lic.ID,
			"product":    product,
			"expires_at": lic.ExpiresAt,
			"owner_ref":  owner,
		}))
	}
	return result, nil
}

func (i *Issuer) issueOne(ctx context.Context, product string, durationDays *int, owner *string) (*model.License, error) {
	now := i.now().UTC()

	var expiresAt *time.Time
	if durationDays != nil {
		t := now.AddDate(0, 0, *durationDays)
		expiresAt = &t
	}

	for attempt := 0; attempt < i.keyRetries; attempt++ {
		key, err := keygen.Generate(i.format)
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}

		lic := &model.License{
			ID:            platform.NewID(),
			Key:           model.CanonicalKey(key),
			Product:       product,
			OwnerRef:      owner,
			IsActive:      true,
			ExpiresAt:     expiresAt,
			MaxHWIDResets: i.defaultMaxResets,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err = i.store.Insert(ctx, lic)
		if errors.Is(err, store.ErrDuplicateKey) {
			i.logger.Debug().Int("attempt", attempt+1).Msg("key collision, regenerating")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: insert license: %v", ErrStoreUnavailable, err)
		}
		return lic, nil
	}
	return nil, ErrKeyCollisionExhausted
}
