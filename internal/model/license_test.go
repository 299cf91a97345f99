package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "HEX-AAAA-BBBB", CanonicalKey("hex-aaaa-bbbb"))
	assert.Equal(t, "HEX-AAAA-BBBB", CanonicalKey("  HEX-aaaa-BBBB  "))
}

func TestLicense_IsExpired(t *testing.T) {
	now := time.Now()

	lic := &License{}
	assert.False(t, lic.IsExpired(now), "nil expiry never expires")

	past := now.Add(-time.Hour)
	lic.ExpiresAt = &past
	assert.True(t, lic.IsExpired(now))

	future := now.Add(time.Hour)
	lic.ExpiresAt = &future
	assert.False(t, lic.IsExpired(now))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "HEX-****-BBBB", MaskKey("HEX-AAAA-BBBB"))
	assert.Equal(t, "HEX-*****-*****-XYZ5", MaskKey("HEX-AB2DE-FGH2J-WXYZ5"))
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "****", MaskKey("ab"))
	assert.Equal(t, "****6789", MaskKey("123456789"))
}
