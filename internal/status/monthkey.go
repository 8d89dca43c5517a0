package status

import (
	"regexp"
	"strings"
	"time"
)

// Report periods arrive as free text like "2025 декабря" with the month
// name in Russian genitive case.
var monthNames = map[string]string{
	"января":   "01",
	"февраля":  "02",
	"марта":    "03",
	"апреля":   "04",
	"мая":      "05",
	"июня":     "06",
	"июля":     "07",
	"августа":  "08",
	"сентября": "09",
	"октября":  "10",
	"ноября":   "11",
	"декабря":  "12",
}

var (
	yearPattern   = regexp.MustCompile(`\d{4}`)
	numKeyPattern = regexp.MustCompile(`\d{6}`)
)

// ExtractMonthKey parses a free-text report period into the canonical
// YYYYMM key used to deduplicate and order history entries. Best effort:
// malformed input falls back to the current year-month rather than failing.
func ExtractMonthKey(reportPeriod string) string {
	return extractMonthKeyAt(reportPeriod, time.Now())
}

func extractMonthKeyAt(reportPeriod string, now time.Time) string {
	lower := strings.ToLower(reportPeriod)

	if year := yearPattern.FindString(reportPeriod); year != "" {
		for name, num := range monthNames {
			if strings.Contains(lower, name) {
				return year + num
			}
		}
	}

	if key := numKeyPattern.FindString(reportPeriod); key != "" {
		return key
	}

	return now.Format("200601")
}
