package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a schema version number. The zero value is reserved: it marks
// an unset createdAt/droppedAt and a store that does not exist yet.
type Version int64

const NoVersion Version = 0

func (v Version) IsSet() bool {
	return v != NoVersion
}

func (v Version) String() string {
	return strconv.FormatInt(int64(v), 10)
}

func ParseVersion(value string) (Version, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return NoVersion, fmt.Errorf("version is required")
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return NoVersion, fmt.Errorf("invalid version %q", value)
	}
	return Version(parsed), nil
}

// ActiveAt reports whether something created at createdAt and dropped at
// droppedAt exists at version v. Unset bounds are open.
func ActiveAt(createdAt, droppedAt, v Version) bool {
	if createdAt.IsSet() && createdAt > v {
		return false
	}
	if droppedAt.IsSet() && droppedAt <= v {
		return false
	}
	return true
}
