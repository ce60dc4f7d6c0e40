package archive

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// identifierPattern restricts table and column names interpolated into SQL.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects table and column names that cannot be safely
// quoted in SQL.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// timeLayouts are the encodings accepted for row timestamps, in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a row timestamp value. Values read from a database are
// usually time.Time; values decoded from an archive file are strings.
// Unix seconds are accepted as integers.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case []byte:
		return ParseTime(string(t))
	case int64:
		return time.Unix(t, 0).UTC(), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// ParseCursor parses a row cursor value.
func ParseCursor(v any) (Cursor, bool) {
	switch c := v.(type) {
	case int64:
		return Cursor(c), true
	case int:
		return Cursor(c), true
	case int32:
		return Cursor(c), true
	case uint64:
		return Cursor(c), true
	case float64:
		return Cursor(c), true
	case json.Number:
		n, err := c.Int64()
		if err != nil {
			return 0, false
		}
		return Cursor(n), true
	case string:
		n, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return 0, false
		}
		return Cursor(n), true
	case []byte:
		return ParseCursor(string(c))
	default:
		return 0, false
	}
}

// StringValue renders a row value for equality filters.
func StringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case json.Number:
		return s.String()
	case time.Time:
		return s.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(s)
	}
}
