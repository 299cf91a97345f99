package model

import (
	"strings"
	"time"
)

// License is a software license key bound to at most one hardware device.
type License struct {
	ID             string     `json:"id"`
	Key            string     `json:"key"`
	Product        string     `json:"product"`
	OwnerRef       *string    `json:"owner_ref,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsBanned       bool       `json:"is_banned"`
	BanReason      *string    `json:"ban_reason,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	HWID           *string    `json:"hwid,omitempty"`
	HWIDBoundAt    *time.Time `json:"hwid_bound_at,omitempty"`
	LastHWIDReset  *time.Time `json:"last_hwid_reset,omitempty"`
	HWIDResetCount int        `json:"hwid_reset_count"`
	MaxHWIDResets  int        `json:"max_hwid_resets"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	// Version is the optimistic concurrency token. Every successful
	// conditional update increments it by one.
	Version int64 `json:"-"`
}

// IsExpired reports whether the license has an expiry in the past.
// A nil ExpiresAt means the license never expires.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// CanonicalKey normalizes a license key for lookup and storage. Keys are
// stored uppercase with surrounding whitespace removed.
func CanonicalKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// MaskKey redacts the middle of a license key for logs and audit events,
// keeping the first group and the last four characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	groups := strings.Split(key, "-")
	if len(groups) < 3 {
		if len(key) <= 4 {
			return "****"
		}
		return "****" + key[len(key)-4:]
	}
	masked := make([]string, len(groups))
	masked[0] = groups[0]
	for i := 1; i < len(groups)-1; i++ {
		masked[i] = strings.Repeat("*", len(groups[i]))
	}
	last := groups[len(groups)-1]
	if len(last) > 4 {
		last = last[len(last)-4:]
	}
	masked[len(groups)-1] = last
	return strings.Join(masked, "-")
}
