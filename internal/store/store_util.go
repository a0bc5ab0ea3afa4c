package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/skillxchange/internal/model"
)

// Now is the store clock. Timestamps are truncated to microseconds so they
// survive a round trip through PostgreSQL unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewMessageID returns a time-ordered message id.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// MergeCounts folds counts keyed by stored sender refs into counts keyed by
// canonical ids, dropping anything that is not positive.
func MergeCounts(raw map[string]int) map[string]int {
	out := make(map[string]int, len(raw))
	for ref, n := range raw {
		if n <= 0 {
			continue
		}
		out[model.Canonical(ref)] += n
	}
	return out
}
