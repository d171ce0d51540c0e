package utils

import (
	"fmt"
	"time"
)

// FormatElapsed renders a running clock for long operations. Values are truncated,
// never rounded up, so the display only ticks forward: "0.4s", "12.0s", "1m05s", "2h03m".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		tenths := d.Truncate(100 * time.Millisecond)
		return fmt.Sprintf("%.1fs", tenths.Seconds())
	}
	if d < time.Hour {
		m := int(d / time.Minute)
		s := int((d % time.Minute) / time.Second)
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh%02dm", h, m)
}
