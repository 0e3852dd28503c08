package swaps

import (
	"fmt"
	"time"

	"github.com/ggonzalez94/solchat/internal/model"
)

var ageUnits = []struct {
	name    string
	seconds float64
}{
	{"year", 365.242199 * 24 * 60 * 60},
	{"month", 30.44 * 24 * 60 * 60},
	{"day", 24 * 60 * 60},
	{"hour", 60 * 60},
	{"minute", 60},
	{"second", 1},
}

// TimeAgo renders the largest whole unit elapsed between t and now.
func TimeAgo(t, now time.Time) string {
	elapsed := now.Sub(t).Seconds()
	for _, u := range ageUnits {
		count := int64(elapsed / u.seconds)
		if count >= 1 {
			suffix := ""
			if count > 1 {
				suffix = "s"
			}
			return fmt.Sprintf("%d %s%s ago", count, u.name, suffix)
		}
	}
	return "just now"
}

// RefreshAges recomputes relative ages of previously analyzed swaps.
func RefreshAges(swaps []model.SwapTransaction, now time.Time) {
	for i := range swaps {
		if !swaps[i].OccurredAt.IsZero() {
			swaps[i].RelativeAge = TimeAgo(swaps[i].OccurredAt, now)
		}
	}
}
