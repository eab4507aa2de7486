// Package codec translates between the human-entered form of a field and the
// device's native encoding. Every codec is a pure (decode, encode) pair:
// decode goes UI form -> wire form, encode goes wire form -> UI form. Some
// codecs are deliberately lossy where the UI granularity is coarser than the
// wire (duration to 0.1 minute, expiry to the minute).
package codec

import (
	"fmt"
	"math"
	"time"
)

// ExpiryLayout is the minute-precision local date-time format used for
// schedule expiry, matching an HTML datetime-local input.
const ExpiryLayout = "2006-01-02T15:04"

// Weekdays are the day-mask bit labels, index = bit position, bit 0 = Monday.
var Weekdays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// DecodeClock parses "HH:MM" into seconds since midnight.
func DecodeClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*3600 + m*60, nil
}

// EncodeClock renders seconds since midnight as zero-padded "HH:MM",
// truncating below the minute.
func EncodeClock(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/3600, (sec/60)%60)
}

// DecodeMinutes converts decimal minutes to whole seconds.
func DecodeMinutes(min float64) int {
	return int(math.Round(min * 60))
}

// EncodeMinutes converts seconds to decimal minutes rounded to one decimal
// place, so decode(encode(s)) is within 6 seconds of s.
func EncodeMinutes(sec int) float64 {
	return math.Round(float64(sec)/6) / 10
}

// DayMaskSet returns mask with weekday bit day (0 = Monday) set or cleared;
// all other bits are untouched.
func DayMaskSet(mask, day int, on bool) int {
	if on {
		return mask | (1 << day)
	}
	return mask &^ (1 << day)
}

// DayMaskGet reports whether weekday bit day is set in mask.
func DayMaskGet(mask, day int) bool {
	return mask>>day&1 == 1
}

// DecodeExpiry parses a minute-precision local date-time into epoch seconds.
// An empty string means "never expires" and decodes to 0.
func DecodeExpiry(s string, loc *time.Location) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.ParseInLocation(ExpiryLayout, s, loc)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", s, err)
	}
	return t.Unix(), nil
}

// EncodeExpiry renders epoch seconds as a local date-time truncated to the
// minute; 0 encodes to the empty string.
func EncodeExpiry(epoch int64, loc *time.Location) string {
	if epoch == 0 {
		return ""
	}
	return time.Unix(epoch, 0).In(loc).Format(ExpiryLayout)
}
