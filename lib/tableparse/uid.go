package tableparse

import (
	"regexp"
	"strings"
)

var uidPattern = regexp.MustCompile(`^[12]\d*(\.\d+)+$`)

// minimum significant length of a DICOM-style instance identifier.
// Spacer and decoration rows never reach this.
const minUIDLength = 20

// IsUID reports whether s looks like an instance identifier: a leading
// "1" or "2" followed by dotted numeric groups, at least minUIDLength
// characters long.
func IsUID(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= minUIDLength && uidPattern.MatchString(s)
}
