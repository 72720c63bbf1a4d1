package present

import (
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"
)

const (
	// TimestampLayout is the display layout for record timestamps.
	TimestampLayout = "Jan 2, 2006, 3:04 PM"
	// Unavailable replaces a timestamp that cannot be displayed.
	Unavailable = "Unavailable"
)

// FormatCurrency renders v as dollars with two decimals. Anything that is not
// a number renders as "$0.00".
func FormatCurrency(v any) string {
	amount, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}

	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	amount = math.Round(amount*100) / 100
	if amount == 0 {
		sign = ""
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", amount)
}

// FormatTimestamp renders a time value or a parseable date string in loc.
// A nil loc means UTC.
func FormatTimestamp(v any, loc *time.Location) (out string) {
	defer func() {
		if recover() != nil {
			out = Unavailable
		}
	}()

	if loc == nil {
		loc = time.UTC
	}

	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case *time.Time:
		if val == nil {
			return Unavailable
		}
		t = *val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return Unavailable
		}
		parsed, err := dateparse.ParseIn(s, loc)
		if err != nil {
			return Unavailable
		}
		t = parsed
	default:
		return Unavailable
	}

	if t.IsZero() {
		return Unavailable
	}
	return t.In(loc).Format(TimestampLayout)
}
