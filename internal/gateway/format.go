package gateway

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Never is the description of a timestamp that was never set
const Never = "never"

// EpochFromNow describes a unix timestamp relative to now, e.g. "3 hours
// ago". A zero timestamp is Never.
func EpochFromNow(epoch int64) string {
	return EpochFromNowAt(epoch, time.Now())
}

// EpochFromNowAt is EpochFromNow against an explicit clock
func EpochFromNowAt(epoch int64, now time.Time) string {
	if epoch == 0 {
		return Never
	}
	return humanize.RelTime(time.Unix(epoch, 0), now, "ago", "from now")
}
