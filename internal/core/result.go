// Package core implements the license lifecycle state machine: the
// verify/bind decision tree, HWID resets with cooldown and quota, and batch
// issuance. All mutation goes through the store's CompareAndUpdate; the
// engine never holds locks across I/O.
package core

import (
	"errors"
	"time"

	"github.com/hexrift/licensor/internal/model"
)

// Reason tags a rejected business outcome. These are expected, frequent
// results and are returned as values, never as errors.
type Reason string

const (
	ReasonNotFound        Reason = "not_found"
	ReasonProductMismatch Reason = "product_mismatch"
	ReasonBanned          Reason = "banned"
	ReasonExpired         Reason = "expired"
	ReasonInactive        Reason = "inactive"
	ReasonHWIDMismatch    Reason = "hwid_mismatch"
	ReasonCooldownActive  Reason = "cooldown_active"
	ReasonQuotaExceeded   Reason = "quota_exceeded"
)

// ErrStoreUnavailable marks infrastructure failures: the store is
// unreachable, or conditional-update retries were exhausted under heavy
// contention. Callers decide retry policy.
var ErrStoreUnavailable = errors.New("license store unavailable")

// ErrKeyCollisionExhausted is returned when key generation kept colliding
// with existing keys past the retry bound.
var ErrKeyCollisionExhausted = errors.New("key generation retries exhausted")

// VerifyResult is the outcome of a verify/bind attempt. Exactly one of
// Valid/Reason is meaningful: Valid=true means the license is bound to the
// presented HWID (NewBinding tells whether this call created the binding),
// Valid=false carries the rejection reason.
type VerifyResult struct {
	Valid      bool
	NewBinding bool
	Reason     Reason
	BanReason  string
	License    *model.License
}

// ResetResult is the outcome of an HWID reset attempt. RetryAfter is set only
// for cooldown rejections.
type ResetResult struct {
	Success    bool
	Reason     Reason
	RetryAfter time.Duration
}

// Requester identifies who is asking for an HWID reset. Ownership checks
// happen upstream; privileged requesters bypass cooldown and quota.
type Requester struct {
	ID           string
	IsPrivileged bool
}

// IssuedLicense pairs a batch index with its created license.
type IssuedLicense struct {
	Index   int
	License *model.License
}

// IssueError pairs a batch index with the error that kept it from being
// created. Failed items never abort their siblings.
type IssueError struct {
	Index int
	Err   error
}

// BatchResult reports every item of an IssueBatch call.
type BatchResult struct {
	Licenses []IssuedLicense
	Errors   []IssueError
}
