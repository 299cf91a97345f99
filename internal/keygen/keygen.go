// Package keygen produces display-formatted license keys from a
// cryptographically secure random source. Uniqueness is not guaranteed here;
// the license store enforces it and issuance retries on collision.
package keygen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// unambiguousAlphabet has exactly 32 characters, so each character carries
// 5 bits and byte%32 sampling is unbiased. Visually confusable characters
// (0, O, 1, I) are excluded.
const unambiguousAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const hexAlphabet = "0123456789ABCDEF"

// Format describes the shape of a generated key: an optional prefix followed
// by Groups dash-separated blocks of GroupLen characters.
type Format struct {
	Prefix   string
	Alphabet string
	Groups   int
	GroupLen int
}

// Default yields keys like HEX-7K2MQ-WX4RT-9PFGH-J3NVB-C8DZY-5TLWS
// (6 groups of 5 characters over a 32-character alphabet, 150 bits).
var Default = Format{Prefix: "HEX", Alphabet: unambiguousAlphabet, Groups: 6, GroupLen: 5}

// Hex yields keys like HEX-3F9A-0B7C-... (8 groups of 4 hex digits, 128 bits).
var Hex = Format{Prefix: "HEX", Alphabet: hexAlphabet, Groups: 8, GroupLen: 4}

// Bits returns the entropy carried by keys of this format, in whole bits
// (rounded down).
func (f Format) Bits() int {
	perChar := 0
	for n := len(f.Alphabet); n > 1; n /= 2 {
		perChar++
	}
	return perChar * f.Groups * f.GroupLen
}

// Generate produces a new random key in the given format. It is safe to call
// concurrently; there is no shared state beyond crypto/rand.
func Generate(f Format) (string, error) {
	if f.Groups <= 0 || f.GroupLen <= 0 || len(f.Alphabet) == 0 {
		return "", fmt.Errorf("invalid key format %+v", f)
	}

	total := f.Groups * f.GroupLen
	raw := make([]byte, total)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	var b strings.Builder
	if f.Prefix != "" {
		b.WriteString(f.Prefix)
	}
	for i, c := range raw {
		if i%f.GroupLen == 0 && (i > 0 || f.Prefix != "") {
			b.WriteByte('-')
		}
		b.WriteByte(f.Alphabet[int(c)%len(f.Alphabet)])
	}
	return b.String(), nil
}
