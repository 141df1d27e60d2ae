package bridge

import (
	"errors"
	"regexp"
	"strings"
)

var ErrPreloadInFlight = errors.New("a preload is already in flight")
var ErrNoSession = errors.New("the hosting page carries no session; log in first")

var unsafeChars = regexp.MustCompile(`[^\w\s\-.]`)
var whitespace = regexp.MustCompile(`\s+`)

// patientKey mirrors the storage service's filename-safe patient key so
// journal entries and pending-refresh keys line up with it.
func patientKey(name, dob string) string {
	key := unsafeChars.ReplaceAllString(name+"_"+dob, "")
	key = whitespace.ReplaceAllString(key, "_")
	if len(key) > 100 {
		key = key[:100]
	}
	return key
}

// keyToName reverses the lossy patient key into a displayable
// approximation: underscores back to spaces, DOB suffix dropped.
func keyToName(key string) string {
	if idx := strings.LastIndex(key, "_"); idx > 0 {
		// The suffix after the last underscore is the DOB when it is
		// numeric; names themselves never end in digits.
		suffix := key[idx+1:]
		if suffix == "" || strings.IndexFunc(suffix, isDigit) == 0 {
			key = key[:idx]
		}
	}
	return strings.ReplaceAll(key, "_", " ")
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
