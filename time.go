package formstate

import "time"

// DateLayout is the wire and display layout of Date values.
const DateLayout = "2006-01-02"

// ParseDateTime accepts RFC3339 with or without fractional seconds.
func ParseDateTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

// FormatDateTime normalizes to UTC and formats using RFC3339Nano (trailing
// zeros trimmed).
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseDate parses a calendar day in DateLayout.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }
