package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexrift/licensor/internal/audit"
	"github.com/hexrift/licensor/internal/store"
)

func newTestLicenseService(st store.Store, emitter audit.Emitter) *LicenseService {
	return NewLicenseService(st, emitter, testLogger())
}

func TestLicenseService_BanAndUnban(t *testing.T) {
	st := store.NewMemory()
	rec := &recordingEmitter{}
	svc := newTestLicenseService(st, rec)
	ctx := context.Background()

	seedLicense(t, st, nil)

	lic, err := svc.Ban(ctx, "lic-1", "chargeback")
	require.NoError(t, err)
	assert.True(t, lic.IsBanned)
	require.NotNil(t, lic.BanReason)
	assert.Equal(t, "chargeback", *lic.BanReason)
	assert.True(t, lic.IsActive, "ban does not deactivate")

	lic, err = svc.Unban(ctx, "lic-1")
	require.NoError(t, err)
	assert.False(t, lic.IsBanned)
	assert.Nil(t, lic.BanReason)

	assert.Equal(t, []audit.Kind{audit.KindLicenseBanned, audit.KindLicenseUnbanned}, rec.kinds())
}

func TestLicenseService_ActivateDeactivate(t *testing.T) {
	st := store.NewMemory()
	rec := &recordingEmitter{}
	svc := newTestLicenseService(st, rec)
	ctx := context.Background()

	seedLicense(t, st, nil)

	lic, err := svc.Deactivate(ctx, "lic-1")
	require.NoError(t, err)
	assert.False(t, lic.IsActive)
	assert.False(t, lic.IsBanned, "deactivation does not ban")

	lic, err = svc.Activate(ctx, "lic-1")
	require.NoError(t, err)
	assert.True(t, lic.IsActive)
}

func TestLicenseService_AssignAndClearOwner(t *testing.T) {
	st := store.NewMemory()
	svc := newTestLicenseService(st, &recordingEmitter{})
	ctx := context.Background()

	seedLicense(t, st, nil)

	owner := "acct-7"
	lic, err := svc.AssignOwner(ctx, "lic-1", &owner)
	require.NoError(t, err)
	require.NotNil(t, lic.OwnerRef)
	assert.Equal(t, "acct-7", *lic.OwnerRef)

	lic, err = svc.AssignOwner(ctx, "lic-1", nil)
	require.NoError(t, err)
	assert.Nil(t, lic.OwnerRef)
}

func TestLicenseService_Delete(t *testing.T) {
	st := store.NewMemory()
	rec := &recordingEmitter{}
	svc := newTestLicenseService(st, rec)
	ctx := context.Background()

	seedLicense(t, st, nil)

	require.NoError(t, svc.Delete(ctx, "lic-1"))
	_, err := st.FindByID(ctx, "lic-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, []audit.Kind{audit.KindLicenseDeleted}, rec.kinds())

	assert.ErrorIs(t, svc.Delete(ctx, "lic-1"), store.ErrNotFound)
}

func TestLicenseService_MutateMissing(t *testing.T) {
	svc := newTestLicenseService(store.NewMemory(), &recordingEmitter{})
	_, err := svc.Ban(context.Background(), "missing", "why not")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLicenseService_GetByKeyCanonicalizes(t *testing.T) {
	st := store.NewMemory()
	svc := newTestLicenseService(st, &recordingEmitter{})
	seedLicense(t, st, nil)

	lic, err := svc.GetByKey(context.Background(), "hex-aaaa-bbbb")
	require.NoError(t, err)
	assert.Equal(t, "lic-1", lic.ID)
}
