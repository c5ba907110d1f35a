package dateparse

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host's tz database
)

// windowsToIANA covers the Windows zone names Graph and the intent parser
// commonly produce.
var windowsToIANA = map[string]string{
	"Pacific Standard Time":        "America/Los_Angeles",
	"Mountain Standard Time":       "America/Denver",
	"Central Standard Time":        "America/Chicago",
	"Eastern Standard Time":        "America/New_York",
	"Atlantic Standard Time":       "America/Halifax",
	"Alaskan Standard Time":        "America/Anchorage",
	"Hawaiian Standard Time":       "Pacific/Honolulu",
	"GMT Standard Time":            "Europe/London",
	"W. Europe Standard Time":      "Europe/Berlin",
	"Central Europe Standard Time": "Europe/Budapest",
	"Romance Standard Time":        "Europe/Paris",
	"China Standard Time":          "Asia/Shanghai",
	"Tokyo Standard Time":          "Asia/Tokyo",
	"India Standard Time":          "Asia/Kolkata",
	"AUS Eastern Standard Time":    "Australia/Sydney",
}

// IANAName returns the IANA name for a Windows zone when one is known.
// Other names are returned unchanged.
func IANAName(zone string) string {
	if iana, ok := windowsToIANA[zone]; ok {
		return iana
	}
	return zone
}

// LoadLocation resolves a Windows or IANA zone name.
func LoadLocation(zone string) (*time.Location, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return nil, fmt.Errorf("time zone is empty")
	}
	loc, err := time.LoadLocation(IANAName(zone))
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", zone, err)
	}
	return loc, nil
}

// ParseIn is Parse with the result expressed in loc: relative expressions
// are resolved against ref as seen in loc, and input carrying a UTC offset
// is converted to loc's wall clock. With a nil loc, offset input is
// rejected since its instant cannot be written as a local time.
func ParseIn(s string, ref time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		if hasOffset(s) {
			return time.Time{}, fmt.Errorf("date %q has a UTC offset but the time zone is unknown", strings.TrimSpace(s))
		}
		return Parse(s, ref)
	}

	if ref.IsZero() {
		ref = time.Now()
	}
	t, err := Parse(s, ref.In(loc))
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func hasOffset(s string) bool {
	_, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	return err == nil
}
