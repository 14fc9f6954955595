package shift

import (
	"fmt"
	"time"
)

// shiftNumberFormat orders shift numbers chronologically per register.
const shiftNumberFormat = "20060102-150405"

// NewShiftNumber derives a shift number from the register identity and the
// open time. It needs no network and no counter state, and sorts in open
// order within one register.
func NewShiftNumber(registerID string, openedAt time.Time) string {
	return fmt.Sprintf("%s-%s", registerID, openedAt.UTC().Format(shiftNumberFormat))
}
