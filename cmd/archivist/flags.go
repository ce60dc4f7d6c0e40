package main

import (
	"fmt"
	"time"

	"mercator-hq/archivist/pkg/cli"
)

// timeLayouts are accepted by --cutoff, --start and --end. Date-only values
// are midnight UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimeFlag parses a time flag value. An empty value returns nil.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, cli.NewConfigError(name, fmt.Sprintf("invalid time %q (use RFC3339 or YYYY-MM-DD)", value))
}

// resolveCutoff picks the run cutoff: an explicit --cutoff, then --days,
// then the table's retention policy.
func resolveCutoff(cutoff string, days int, now time.Time, policy func() (time.Time, bool)) (time.Time, error) {
	if cutoff != "" && days > 0 {
		return time.Time{}, cli.NewConfigError("cutoff", "--cutoff and --days are mutually exclusive")
	}

	t, err := parseTimeFlag("cutoff", cutoff)
	if err != nil {
		return time.Time{}, err
	}
	if t != nil {
		return *t, nil
	}

	if days < 0 {
		return time.Time{}, cli.NewConfigError("days", "must be positive")
	}
	if days > 0 {
		return now.AddDate(0, 0, -days), nil
	}

	if c, ok := policy(); ok {
		return c, nil
	}
	return time.Time{}, cli.NewConfigError("cutoff", "table has no retention policy; pass --cutoff or --days")
}
