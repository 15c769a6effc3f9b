package timeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	yearOnlyRe  = regexp.MustCompile(`^\d{4}[-?xX]*$`)
	yearMonthRe = regexp.MustCompile(`^\d{4}-\d{2}[-?xX]*$`)
)

// UnscuffDate completes a partial yyyy-mm-dd date to the latest day it could
// stand for: "2022-??-??" becomes "2022-12-31" and "2021-06" becomes
// "2021-06-30". Complete or unrecognized dates are returned unchanged.
func UnscuffDate(date string) string {
	date = strings.ReplaceAll(date, "–", "-")
	if yearOnlyRe.MatchString(date) {
		return date[:4] + "-12-31"
	}
	if yearMonthRe.MatchString(date) {
		year, _ := strconv.Atoi(date[:4])
		month, _ := strconv.Atoi(date[5:7])
		if month < 1 || month > 12 {
			return date
		}
		// day 0 of the following month is the last day of this one
		last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
		return fmt.Sprintf("%04d-%02d-%02d", last.Year(), int(last.Month()), last.Day())
	}
	return date
}

// parseRelease parses a release date as written in the timeline. Year and
// year-month forms are accepted.
func parseRelease(s string) (time.Time, bool) {
	for _, layout := range []string{dateLayout, "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
