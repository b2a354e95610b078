// Package agentid encodes agent identities. New agents carry their display
// name and full backend id as two separate fields; DisplayName recovers a
// display name from legacy ids that only stored "<name>_<uuid>".
package agentid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPrefix is returned for agent names that cannot be sent to the backend.
var ErrInvalidPrefix = errors.New("invalid agent name")

const maxPrefixLen = 64

var (
	prefixPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// Identity is an agent's display name and the id the backend stores it under.
type Identity struct {
	DisplayName string `json:"displayName"`
	FullID      string `json:"fullId"`
}

// New validates prefix and pairs it with a fresh uuid suffix.
func New(prefix string) (Identity, error) {
	return NewWithUUID(prefix, uuid.New())
}

// NewWithUUID is New with a caller-supplied uuid.
func NewWithUUID(prefix string, id uuid.UUID) (Identity, error) {
	prefix = strings.TrimSpace(prefix)
	if err := ValidatePrefix(prefix); err != nil {
		return Identity{}, err
	}
	return Identity{
		DisplayName: prefix,
		FullID:      prefix + "_" + strings.ReplaceAll(id.String(), "-", "_"),
	}, nil
}

// ValidatePrefix checks a user-entered agent name.
func ValidatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPrefix)
	case len(prefix) > maxPrefixLen:
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidPrefix, maxPrefixLen)
	case !prefixPattern.MatchString(prefix):
		return fmt.Errorf("%w: use letters, digits, '_' or '-', starting with a letter or digit", ErrInvalidPrefix)
	}
	return nil
}

// Resolve picks the identity for a backend record: an explicit display
// name wins, otherwise the legacy suffix is stripped from the raw id.
func Resolve(displayName, fullID string) Identity {
	if displayName != "" {
		return Identity{DisplayName: displayName, FullID: fullID}
	}
	return Identity{DisplayName: DisplayName(fullID), FullID: fullID}
}

// DisplayName strips a uuid suffix from a legacy "<name>_<uuid>" id, where
// the uuid's hyphens were replaced by underscores.
func DisplayName(raw string) string {
	parts := strings.Split(raw, "_")
	if len(parts) < 5 {
		return raw
	}

	if hasGroupLengths(parts[len(parts)-5:], 8, 4, 4, 4, 12) && len(parts) > 5 {
		return strings.Join(parts[:len(parts)-5], "_")
	}
	if hasGroupLengths(parts[len(parts)-4:], 8, 4, 4, 4) && len(parts) > 4 {
		return strings.Join(parts[:len(parts)-4], "_")
	}

	return raw[:strings.LastIndex(raw, "_")]
}

func hasGroupLengths(parts []string, lengths ...int) bool {
	for i, n := range lengths {
		if len(parts[i]) != n {
			return false
		}
	}
	return true
}

// Sanitize turns an arbitrary app name into a usable agent prefix.
func Sanitize(name string) string {
	return strings.ToLower(unsafeChars.ReplaceAllString(name, "_"))
}
