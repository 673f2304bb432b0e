// Package scriptcodec implements the remote-object filename convention and
// the v1/v2 script payload wire formats used when reading and writing
// remote blobs.
package scriptcodec

import (
	"net/url"
	"strings"
)

const (
	// legacyPrefix is the read-only legacy filename prefix (vm-<percent-encoded-uri>).
	legacyPrefix = "vm-"
	// versionedPrefixHead is the head of the versioned prefix (vm@<digits>-<uri>).
	versionedPrefixHead = "vm@"
	// CurrentVersion is the filename version written for new remote objects.
	CurrentVersion = 2
)

// Filename returns the remote object name for a script. When both name and
// uri are known, the existing name wins (current stored name preferred);
// otherwise a name is synthesized from uri using the current version.
func Filename(name, uri string) string {
	if name != "" {
		return name
	}
	return versionedPrefixHead + "2-" + uri
}

// IsScriptFile reports whether name matches the script filename convention:
// it begins with "vm-" or "vm@<digits>-". The meta file name never matches
// this (it carries neither prefix).
func IsScriptFile(name string) bool {
	if strings.HasPrefix(name, legacyPrefix) {
		return true
	}
	_, ok := versionAndRest(name)
	return ok
}

// versionAndRest returns the <rest> part of a "vm@<digits>-<rest>" name;
// the version digits are not returned. ok is false if name does not have
// the vm@ shape.
func versionAndRest(name string) (rest string, ok bool) {
	if !strings.HasPrefix(name, versionedPrefixHead) {
		return "", false
	}
	body := name[len(versionedPrefixHead):]
	dashIdx := strings.IndexByte(body, '-')
	if dashIdx < 0 {
		return "", false
	}
	digits := body[:dashIdx]
	if digits == "" {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return body[dashIdx+1:], true
}

// ParseURI recovers the script URI encoded in a remote object name. For
// version 2 the URI is the remainder unchanged; for legacy names (no
// version, or version other than 2) the remainder is percent-decoded,
// falling back to the raw remainder if decoding fails.
func ParseURI(name string) (uri string, ok bool) {
	if rest, isVersioned := versionAndRest(name); isVersioned {
		if strings.HasPrefix(name, versionedPrefixHead+"2-") {
			return rest, true
		}
		return decodeOrRaw(rest), true
	}

	if rest, found := strings.CutPrefix(name, legacyPrefix); found {
		return decodeOrRaw(rest), true
	}

	return "", false
}

// decodeOrRaw percent-decodes s, returning s unchanged if decoding fails.
func decodeOrRaw(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
