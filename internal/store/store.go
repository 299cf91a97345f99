// Package store persists license records. CompareAndUpdate is the only
// mutation primitive the verification engine uses; every backend must
// implement it as a single atomic conditional write keyed on the record's
// version token.
package store

import (
	"context"
	"errors"

	"github.com/hexrift/licensor/internal/model"
)

var (
	// ErrNotFound is returned when no license matches the lookup.
	ErrNotFound = errors.New("license not found")
	// ErrDuplicateKey is returned by Insert when the key already exists.
	ErrDuplicateKey = errors.New("license key already exists")
	// ErrVersionConflict is returned by CompareAndUpdate when the stored
	// version no longer matches the caller's copy.
	ErrVersionConflict = errors.New("license version conflict")
)

// ListFilter narrows and paginates List results. Cursor is the ID of the last
// item from the previous page.
type ListFilter struct {
	Product  string
	OwnerRef string
	Limit    int
	Cursor   string
}

// Store is the persistence interface the engine and managers depend on.
type Store interface {
	// FindByKey looks up a license by its canonical (uppercase) key.
	FindByKey(ctx context.Context, key string) (*model.License, error)
	// FindByID looks up a license by ID.
	FindByID(ctx context.Context, id string) (*model.License, error)
	// Insert stores a new license. Returns ErrDuplicateKey if the key is
	// already taken.
	Insert(ctx context.Context, lic *model.License) error
	// CompareAndUpdate writes lic conditioned on the stored version still
	// matching lic.Version. On success the stored version and lic.Version
	// are incremented. Returns ErrVersionConflict if another writer got
	// there first, ErrNotFound if the record is gone.
	CompareAndUpdate(ctx context.Context, lic *model.License) error
	// Delete removes a license by ID.
	Delete(ctx context.Context, id string) error
	// List returns licenses matching the filter plus a has-more flag.
	List(ctx context.Context, filter ListFilter) ([]model.License, bool, error)
}
