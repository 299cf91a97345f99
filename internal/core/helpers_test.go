package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hexrift/licensor/internal/audit"
	"github.com/hexrift/licensor/internal/model"
	"github.com/hexrift/licensor/internal/store"
)

// recordingEmitter captures emitted audit events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) all() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

func (r *recordingEmitter) kinds() []audit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]audit.Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func seedLicense(t *testing.T, st store.Store, mutate func(*model.License)) *model.License {
	t.Helper()
	now := time.Now().UTC()
	lic := &model.License{
		ID:            "lic-1",
		Key:           "HEX-AAAA-BBBB",
		Product:       "Widget",
		IsActive:      true,
		MaxHWIDResets: 3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(lic)
	}
	require.NoError(t, st.Insert(context.Background(), lic))
	return lic
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
