package models

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MinNameLength = 1
	MaxNameLength = 64
)

// PasswordDigest is a salted, iterated one-way password hash.
type PasswordDigest struct {
	Salt       []byte
	Hash       []byte
	Iterations int
}

// Profile is a local identity.
type Profile struct {
	ID          string
	Name        string
	AvatarColor string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Password is nil for profiles that never set a credential.
	Password *PasswordDigest
}

// NormalizeName trims and NFC-normalises a display name and reports whether
// its length is within [MinNameLength, MaxNameLength] characters.
func NormalizeName(name string) (string, bool) {
	n := norm.NFC.String(strings.TrimSpace(name))
	l := utf8.RuneCountInString(n)
	return n, l >= MinNameLength && l <= MaxNameLength
}

// AvatarColor derives a stable HSL colour from a display name.
func AvatarColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(name)))
	return fmt.Sprintf("hsl(%d, 65%%, 45%%)", h.Sum32()%360)
}
