package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hexrift/licensor/internal/model"
)

// Memory is an in-memory Store backed by a map and a mutex. It is used in
// tests and for single-process dev mode. The mutex makes CompareAndUpdate a
// single atomic read-check-write, matching the contract the Postgres backend
// satisfies with a conditional UPDATE.
type Memory struct {
	mu      sync.Mutex
	byID    map[string]*model.License
	keyToID map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]*model.License),
		keyToID: make(map[string]string),
	}
}

func (m *Memory) FindByKey(ctx context.Context, key string) (*model.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.keyToID[model.CanonicalKey(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLicense(m.byID[id]), nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (*model.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	lic, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLicense(lic), nil
}

func (m *Memory) Insert(ctx context.Context, lic *model.License) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := model.CanonicalKey(lic.Key)
	if _, exists := m.keyToID[key]; exists {
		return ErrDuplicateKey
	}
	if _, exists := m.byID[lic.ID]; exists {
		return ErrDuplicateKey
	}

	stored := copyLicense(lic)
	stored.Key = key
	m.byID[lic.ID] = stored
	m.keyToID[key] = lic.ID
	return nil
}

func (m *Memory) CompareAndUpdate(ctx context.Context, lic *model.License) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[lic.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != lic.Version {
		return ErrVersionConflict
	}

	lic.Version++
	lic.UpdatedAt = time.Now().UTC()
	stored := copyLicense(lic)
	stored.Key = model.CanonicalKey(lic.Key)
	m.byID[lic.ID] = stored
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	lic, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.keyToID, lic.Key)
	delete(m.byID, id)
	return nil
}

func (m *Memory) List(ctx context.Context, filter ListFilter) ([]model.License, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []model.License
	for _, lic := range m.byID {
		if filter.Product != "" && lic.Product != filter.Product {
			continue
		}
		if filter.OwnerRef != "" && (lic.OwnerRef == nil || *lic.OwnerRef != filter.OwnerRef) {
			continue
		}
		if filter.Cursor != "" && lic.ID <= filter.Cursor {
			continue
		}
		all = append(all, *copyLicense(lic))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	limit := filter.Limit
	if limit <= 0 {
		limit = len(all)
	}
	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	return all, hasMore, nil
}

// copyLicense deep-copies a license so callers never share pointers with the
// stored record.
func copyLicense(src *model.License) *model.License {
	dst := *src
	dst.OwnerRef = copyStr(src.OwnerRef)
	dst.BanReason = copyStr(src.BanReason)
	dst.HWID = copyStr(src.HWID)
	dst.ExpiresAt = copyTime(src.ExpiresAt)
	dst.HWIDBoundAt = copyTime(src.HWIDBoundAt)
	dst.LastHWIDReset = copyTime(src.LastHWIDReset)
	dst.LastVerifiedAt = copyTime(src.LastVerifiedAt)
	return &dst
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
