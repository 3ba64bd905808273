// Package util provides identifier helpers for the FocusPipe application.
package util

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateSessionID returns a fresh session identifier.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateCallbackID generates an arming identifier with "cb_" prefix.
func GenerateCallbackID() string {
	return GenerateRandomID("cb_", 16)
}

// GenerateMessageID generates a local message identifier with "m_" prefix,
// used by transports that do not assign ids of their own.
func GenerateMessageID() string {
	return GenerateRandomID("m_", 20)
}
