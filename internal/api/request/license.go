package request

// VerifyLicense is the client-facing verification request. Version and
// machine info are accepted for audit context but carry no decision weight.
type VerifyLicense struct {
	Key     string `json:"key" validate:"required,min=8,max=128"`
	HWID    string `json:"hwid" validate:"required,min=8,max=256"`
	Product string `json:"product" validate:"required,min=1,max=255"`
	Version string `json:"version" validate:"omitempty,max=64"`
}

// IssueBatch holds the request body for batch license creation.
type IssueBatch struct {
	Product      string  `json:"product" validate:"required,min=1,max=255"`
	Quantity     int     `json:"quantity" validate:"required,min=1,max=1000"`
	DurationDays *int    `json:"duration_days" validate:"omitempty,min=1,max=36500"`
	Owner        *string `json:"owner" validate:"omitempty,min=1,max=255"`
}

// BanLicense holds the request body for banning a license.
type BanLicense struct {
	Reason string `json:"reason" validate:"required,min=1,max=1024"`
}

// AssignOwner holds the request body for owner assignment. A null owner
// unassigns the license.
type AssignOwner struct {
	Owner *string `json:"owner" validate:"omitempty,min=1,max=255"`
}

// ResetHWID holds the request body for an HWID reset. Requester identity
// comes from the authenticated API key; privileged resets skip cooldown and
// quota.
type ResetHWID struct {
	Privileged bool `json:"privileged"`
}

// CreateAPIKey holds the request body for creating an admin API key.
type CreateAPIKey struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}
