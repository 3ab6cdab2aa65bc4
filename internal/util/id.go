package util

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const pageSuffixLen = 6

// NewID returns a random identifier, prefixed when prefix is non-empty.
func NewID(prefix string) string {
	value := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return value
	}
	return prefix + "_" + value
}

// NewPageID mints a client-side page id of the form p-<base36 millis>-<random>.
func NewPageID(now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:pageSuffixLen]
	return "p-" + stamp + "-" + suffix
}
