package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hexrift/licensor/internal/audit"
	"github.com/hexrift/licensor/internal/keygen"
	"github.com/hexrift/licensor/internal/store"
)

// Options carries the tunable policy values. Zero values select the
// defaults (24h cooldown, 3 verify attempts, default key format).
type Options struct {
	Cooldown         time.Duration
	DefaultMaxResets int
	VerifyAttempts   int
	KeyFormat        keygen.Format
}

// Services bundles the license core for the API layer.
type Services struct {
	Engine  *Engine
	Reset   *ResetManager
	Issuer  *Issuer
	License *LicenseService
	APIKey  *APIKeyService
}

// NewServices wires the engine, managers, and staff services against one
// store and one audit emitter.
func NewServices(st store.Store, db store.DB, emitter audit.Emitter, logger zerolog.Logger, opts Options) *Services {
	format := opts.KeyFormat
	if format.Groups == 0 {
		format = keygen.Default
	}
	return &Services{
		Engine:  NewEngine(st, emitter, logger, opts.VerifyAttempts),
		Reset:   NewResetManager(st, emitter, logger, opts.Cooldown),
		Issuer:  NewIssuer(st, emitter, logger, format, opts.DefaultMaxResets),
		License: NewLicenseService(st, emitter, logger),
		APIKey:  NewAPIKeyService(db),
	}
}
