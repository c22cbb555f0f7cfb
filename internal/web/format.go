package web

import "time"

// DisplayLayout is the day-first timestamp shown on history pages.
const DisplayLayout = "02/01/2006 15:04"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatTimestamp renders an ISO-8601 timestamp with DisplayLayout. Values
// that do not parse are returned unchanged.
func FormatTimestamp(iso string) string {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, iso); err == nil {
			return t.Format(DisplayLayout)
		}
	}
	return iso
}
