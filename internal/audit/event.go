// Package audit emits one event per license state transition or rejected
// operation. Delivery is best-effort and asynchronous; a failed or dropped
// emission never affects the already-committed state change.
package audit

import (
	"time"
)

// Kind identifies a transition or rejection. The set is closed; handlers and
// sinks must not invent ad-hoc kinds.
type Kind string

const (
	KindLicenseIssued    Kind = "license.issued"
	KindLicenseBound     Kind = "license.bound"
	KindLicenseVerified  Kind = "license.verified"
	KindVerifyRejected   Kind = "verify.rejected"
	KindHWIDReset        Kind = "hwid.reset"
	KindHWIDResetDenied  Kind = "hwid.reset_denied"
	KindLicenseBanned    Kind = "license.banned"
	KindLicenseUnbanned  Kind = "license.unbanned"
	KindLicenseActivated Kind = "license.activated"
	KindLicenseDisabled  Kind = "license.deactivated"
	KindLicenseDeleted   Kind = "license.deleted"
	KindOwnerAssigned    Kind = "license.owner_assigned"
)

// Event is a single audit record. LicenseKey is always the masked form;
// raw keys never leave the core.
type Event struct {
	Kind       Kind           `json:"kind"`
	Timestamp  time.Time      `json:"timestamp"`
	LicenseKey string         `json:"license_key"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// NewEvent builds an event stamped with the current time. The key must
// already be masked by the caller (model.MaskKey).
func NewEvent(kind Kind, maskedKey string, fields map[string]any) Event {
	return Event{
		Kind:       kind,
		Timestamp:  time.Now().UTC(),
		LicenseKey: maskedKey,
		Fields:     fields,
	}
}
