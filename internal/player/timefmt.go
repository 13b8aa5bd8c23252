package player

import (
	"fmt"
	"math"
)

// FormatClock renders seconds as "m:ss". Minutes are not wrapped into
// hours. Unknown, negative or non-finite input renders as "0:00".
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
