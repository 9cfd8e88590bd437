package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobIDPrefix marks identifiers minted by NewJobID.
const JobIDPrefix = "j_"

// NewJobID generates a unique, time-sortable job ID.
// Format: j_<unix-nanos base36>_<uuid fragment>
func NewJobID() string {
	stamp := strconv.FormatInt(time.Now().UTC().UnixNano(), 36)
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s%s_%s", JobIDPrefix, stamp, suffix)
}

// IsJobID reports whether s looks like a platform job ID.
func IsJobID(s string) bool {
	return strings.HasPrefix(s, JobIDPrefix) && len(s) > len(JobIDPrefix)
}
