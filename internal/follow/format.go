package follow

import (
	"fmt"
	"math"
)

// FormatDuration renders minutes the way people say them: "1 h 05 min", "12 min".
func FormatDuration(minutes float64) string {
	total := int(math.Round(minutes))
	switch {
	case total < 1:
		return "less than a minute"
	case total < 60:
		return fmt.Sprintf("%d min", total)
	default:
		return fmt.Sprintf("%d h %02d min", total/60, total%60)
	}
}

func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}
