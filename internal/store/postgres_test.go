package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hexrift/licensor/internal/model"
)

func licenseScanFunc(lic *model.License) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = lic.ID
		*(dest[1].(*string)) = lic.Key
		*(dest[2].(*string)) = lic.Product
		*(dest[3].(**string)) = lic.OwnerRef
		*(dest[4].(*bool)) = lic.IsActive
		*(dest[5].(*bool)) = lic.IsBanned
		*(dest[6].(**string)) = lic.BanReason
		*(dest[7].(**time.Time)) = lic.ExpiresAt
		*(dest[8].(**string)) = lic.HWID
		*(dest[9].(**time.Time)) = lic.HWIDBoundAt
		*(dest[10].(**time.Time)) = lic.LastHWIDReset
		*(dest[11].(*int)) = lic.HWIDResetCount
		*(dest[12].(*int)) = lic.MaxHWIDResets
		*(dest[13].(**time.Time)) = lic.LastVerifiedAt
		*(dest[14].(*time.Time)) = lic.CreatedAt
		*(dest[15].(*time.Time)) = lic.UpdatedAt
		*(dest[16].(*int64)) = lic.Version
		return nil
	}
}

func TestPostgres_FindByKey(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	want := newLicense("lic-1", "HEX-AAAA-BBBB")
	row := &mockRow{scanFunc: licenseScanFunc(want)}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"HEX-AAAA-BBBB"}).Return(row)

	// Lookup canonicalizes the key before querying.
	got, err := s.FindByKey(ctx, "hex-aaaa-bbbb")
	require.NoError(t, err)
	assert.Equal(t, "lic-1", got.ID)
	db.AssertExpectations(t)
}

func TestPostgres_FindByKey_NotFound(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := s.FindByKey(ctx, "HEX-NOPE-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_Insert(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := s.Insert(ctx, newLicense("lic-1", "HEX-AAAA-BBBB"))
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPostgres_Insert_DuplicateKey(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "licenses_key_key"}
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, pgErr)

	err := s.Insert(ctx, newLicense("lic-1", "HEX-AAAA-BBBB"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestPostgres_Insert_OtherError(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := s.Insert(ctx, newLicense("lic-1", "HEX-AAAA-BBBB"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateKey)
	assert.Contains(t, err.Error(), "insert license")
}

func TestPostgres_CompareAndUpdate(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	lic := newLicense("lic-1", "HEX-AAAA-BBBB")
	lic.Version = 2

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return args[0] == "lic-1" && args[1] == int64(2)
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, s.CompareAndUpdate(ctx, lic))
	assert.Equal(t, int64(3), lic.Version)
	db.AssertExpectations(t)
}

func TestPostgres_CompareAndUpdate_VersionConflict(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	existsRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = true
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existsRow)

	lic := newLicense("lic-1", "HEX-AAAA-BBBB")
	err := s.CompareAndUpdate(ctx, lic)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(0), lic.Version, "version unchanged on conflict")
}

func TestPostgres_CompareAndUpdate_Deleted(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	existsRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = false
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existsRow)

	err := s.CompareAndUpdate(ctx, newLicense("lic-1", "HEX-AAAA-BBBB"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_Delete(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"lic-1"}).Return(pgconn.NewCommandTag("DELETE 1"), nil)
	require.NoError(t, s.Delete(ctx, "lic-1"))

	db2 := &mockDB{}
	s2 := NewPostgres(db2)
	db2.On("Exec", ctx, mock.AnythingOfType("string"), []any{"lic-2"}).Return(pgconn.NewCommandTag("DELETE 0"), nil)
	assert.ErrorIs(t, s2.Delete(ctx, "lic-2"), ErrNotFound)
}

func TestPostgres_List(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	a := newLicense("a", "HEX-AAAA-0001")
	b := newLicense("b", "HEX-AAAA-0002")
	rows := newMockRows(licenseScanFunc(a), licenseScanFunc(b))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	licenses, hasMore, err := s.List(ctx, ListFilter{Product: "Widget", Limit: 10})
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, licenses, 2)
	assert.Equal(t, "a", licenses[0].ID)
	db.AssertExpectations(t)
}

func TestPostgres_List_HasMore(t *testing.T) {
	db := &mockDB{}
	s := NewPostgres(db)
	ctx := context.Background()

	a := newLicense("a", "HEX-AAAA-0001")
	b := newLicense("b", "HEX-AAAA-0002")
	rows := newMockRows(licenseScanFunc(a), licenseScanFunc(b))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	licenses, hasMore, err := s.List(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Len(t, licenses, 1)
}
