// Package bleid handles BLE service and characteristic identifiers as the
// rest of the codebase expects them: lowercase, dash-free, with 16-bit
// short-form identifiers rendered as 4 hex characters.
package bleid

import (
	"fmt"
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID. 128-bit UUIDs of
// the form 0000xxxx-0000-1000-8000-00805f9b34fb collapse to their 16-bit
// short form xxxx.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no
// dashes). Strips a 0x prefix if present (e.g., "0x2902" -> "2902"). Full
// 128-bit UUIDs in SIG base format are reduced to their 16-bit short form.
// Returns "" for input that cannot be a UUID at all.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if !isHex(s) {
		return ""
	}

	switch len(s) {
	case 4:
		return s
	case 32:
		if s[:4] == "0000" && s[8:] == sigBaseSuffix {
			return s[4:8]
		}
		return s
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, 0, len(uuids))
	for _, u := range uuids {
		result = append(result, NormalizeUUID(u))
	}
	return result
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Long UUIDs are cut to their first eight characters; short UUIDs pass through.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// Equal reports whether two UUID strings identify the same attribute once
// normalized.
func Equal(a, b string) bool {
	na, nb := NormalizeUUID(a), NormalizeUUID(b)
	return na != "" && na == nb
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
