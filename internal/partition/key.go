package partition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tlerrors "github.com/arkilian/timeline/internal/errors"
)

// KeySeparator separates the segments of a flat key.
const KeySeparator = "_"

// KeyParts are the components of a flat partition key
// YYYY_MM_DD[_HHMM]_<id>.
type KeyParts struct {
	Year    int
	Month   int
	Day     int
	Hour    int
	Minute  int
	HasTime bool
	ID      string
}

// PartsOf decomposes t (in UTC) and id into key parts.
func PartsOf(t time.Time, id string, withTime bool) KeyParts {
	t = t.UTC()
	return KeyParts{
		Year:    t.Year(),
		Month:   int(t.Month()),
		Day:     t.Day(),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		HasTime: withTime,
		ID:      id,
	}
}

// EncodeKey renders parts as a flat key.
func EncodeKey(p KeyParts) string {
	if p.HasTime {
		return fmt.Sprintf("%04d_%02d_%02d_%02d%02d_%s", p.Year, p.Month, p.Day, p.Hour, p.Minute, p.ID)
	}
	return fmt.Sprintf("%04d_%02d_%02d_%s", p.Year, p.Month, p.Day, p.ID)
}

// DecodeKey inverts EncodeKey. withTime tells whether the key carries an
// HHMM segment. The id is everything after the date (and time) segments and
// may itself contain separators.
func DecodeKey(key string, withTime bool) (KeyParts, error) {
	n := 4
	if withTime {
		n = 5
	}
	segs := strings.SplitN(key, KeySeparator, n)
	if len(segs) < n || segs[n-1] == "" {
		return KeyParts{}, tlerrors.NewMalformedKeyError(tlerrors.CodeTooFewSegments, key,
			fmt.Sprintf("key %q has fewer than %d segments", key, n))
	}

	year, err := fixedDigits(key, segs[0], 4, "year")
	if err != nil {
		return KeyParts{}, err
	}
	month, err := fixedDigits(key, segs[1], 2, "month")
	if err != nil {
		return KeyParts{}, err
	}
	day, err := fixedDigits(key, segs[2], 2, "day")
	if err != nil {
		return KeyParts{}, err
	}
	if year < 1 || month < 1 || month > 12 || day < 1 || day > daysIn(year, month) {
		return KeyParts{}, tlerrors.NewMalformedKeyError(tlerrors.CodeBadSegment, key,
			fmt.Sprintf("key %q has an out-of-range date", key))
	}

	parts := KeyParts{Year: year, Month: month, Day: day, ID: segs[n-1]}
	if withTime {
		hhmm, err := fixedDigits(key, segs[3], 4, "time")
		if err != nil {
			return KeyParts{}, err
		}
		parts.Hour, parts.Minute, parts.HasTime = hhmm/100, hhmm%100, true
		if parts.Hour > 23 || parts.Minute > 59 {
			return KeyParts{}, tlerrors.NewMalformedKeyError(tlerrors.CodeBadSegment, key,
				fmt.Sprintf("key %q has an out-of-range time", key))
		}
	}
	return parts, nil
}

func fixedDigits(key, seg string, width int, field string) (int, error) {
	if len(seg) != width {
		return 0, tlerrors.NewMalformedKeyError(tlerrors.CodeBadSegment, key,
			fmt.Sprintf("%s segment %q must be %d digits", field, seg, width))
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, tlerrors.NewMalformedKeyError(tlerrors.CodeBadSegment, key,
				fmt.Sprintf("%s segment %q is not numeric", field, seg))
		}
	}
	v, _ := strconv.Atoi(seg)
	return v, nil
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
