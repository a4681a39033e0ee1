package merge

import (
	"fmt"
	"strconv"
	"strings"
)

// BumpMinor increments the middle segment of a "major.minor.patch" version
// string, leaving the major and patch segments untouched: "1.2.0" becomes
// "1.3.0". Merges and explicit saves always bump minor, regardless of how
// large the change is.
func BumpMinor(version string) (string, error) {
	major, minor, patch, err := splitVersion(version)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d", major, minor+1, patch), nil
}

// BumpPatch increments the last segment. Backup versions created before a
// rollback or merge use patch bumps so they never collide with the
// minor-bump sequence of regular saves.
func BumpPatch(version string) (string, error) {
	major, minor, patch, err := splitVersion(version)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch+1), nil
}

func splitVersion(version string) (major, minor, patch int, err error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed version %q: want major.minor.patch", version)
	}

	segments := make([]int, 3)
	for i, part := range parts {
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("malformed version %q: segment %q is not a non-negative integer", version, part)
		}
		segments[i] = n
	}

	return segments[0], segments[1], segments[2], nil
}
