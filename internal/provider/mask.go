package provider

import "strings"

// MaskKey hides all but the last four characters of an API key.
func MaskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) < 4:
		return strings.Repeat("•", 8)
	case len(key) <= 8:
		return strings.Repeat("•", 4) + key[len(key)-4:]
	}
	return strings.Repeat("•", 32) + key[len(key)-4:]
}
