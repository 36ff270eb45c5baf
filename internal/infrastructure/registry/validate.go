package registry

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidConnectionID rejects malformed connection identifiers before they
// reach the maps.
var ErrInvalidConnectionID = errors.New("registry: invalid connection id")

// reservedSeparators would collide with token composition (:) or push URL
// paths (/).
const reservedSeparators = ":/"

// ValidateConnectionID checks that id is non-empty and free of reserved
// separator characters and whitespace.
func ValidateConnectionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidConnectionID)
	}
	if strings.ContainsAny(id, reservedSeparators) {
		return fmt.Errorf("%w: %q contains a reserved separator", ErrInvalidConnectionID, id)
	}
	if strings.ContainsFunc(id, unicode.IsSpace) {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidConnectionID, id)
	}
	return nil
}
