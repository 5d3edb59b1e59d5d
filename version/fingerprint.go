package version

// Based on libtorrent/src/fingerprint.cpp.

import (
	"fmt"
)

// Converts a version number to a character: 0-9 are digits, and 10 and up are 'A', 'B' and so on.
func versionToChar(v int) rune {
	switch {
	case v >= 0 && v < 10:
		return rune('0' + v)
	case v >= 10:
		return rune('A' + (v - 10))
	default:
		panic("invalid version number for fingerprint")
	}
}

// Builds the 8 character BEP 20 style prefix, such as "-LT2100-" for ("LT", 2, 1, 0, 0). Names shorter
// than 2 characters become "--".
func GenerateFingerprint(name string, major, minor, revision, tag int) string {
	if len(name) < 2 {
		name = "--"
	}

	if major < 0 || minor < 0 || revision < 0 || tag < 0 {
		panic("negative version number in fingerprint")
	}

	runes := []rune(name)
	return fmt.Sprintf("-%c%c%c%c%c%c-",
		runes[0],
		runes[1],
		versionToChar(major),
		versionToChar(minor),
		versionToChar(revision),
		versionToChar(tag),
	)
}
