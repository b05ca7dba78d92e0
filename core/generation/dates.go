package generation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/siherrmann/facter/model"
)

// ResolveDateRange resolves a date expression from the generation service
// into an occurrence window and temporal precision. The service may answer
// with absolute dates at different granularities, explicit ranges, or
// relative expressions ("ayer", "yesterday") which are resolved against the
// article's reference date.
func ResolveDateRange(expr string, reference time.Time) (time.Time, time.Time, model.TemporalPrecision, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, time.Time{}, "", fmt.Errorf("empty date expression")
	}

	// Explicit range: two date expressions joined by "/"
	if before, after, found := strings.Cut(expr, "/"); found {
		from, _, _, err := ResolveDateRange(before, reference)
		if err != nil {
			return time.Time{}, time.Time{}, "", fmt.Errorf("invalid range start %q: %w", before, err)
		}
		_, to, _, err := ResolveDateRange(after, reference)
		if err != nil {
			return time.Time{}, time.Time{}, "", fmt.Errorf("invalid range end %q: %w", after, err)
		}
		if from.After(to) {
			return time.Time{}, time.Time{}, "", fmt.Errorf("inverted range %q", expr)
		}
		return from, to, model.PrecisionPeriod, nil
	}

	// Relative expressions resolve against the reference date
	refDay := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(expr) {
	case "hoy", "today":
		return dayRange(refDay, model.PrecisionDay)
	case "ayer", "yesterday":
		return dayRange(refDay.AddDate(0, 0, -1), model.PrecisionDay)
	case "anteayer":
		return dayRange(refDay.AddDate(0, 0, -2), model.PrecisionDay)
	case "mañana", "manana", "tomorrow":
		return dayRange(refDay.AddDate(0, 0, 1), model.PrecisionDay)
	}

	// Exact timestamp
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		t = t.UTC()
		return t, t, model.PrecisionExact, nil
	}

	// Calendar day
	if t, err := time.Parse("2006-01-02", expr); err == nil {
		return dayRange(t, model.PrecisionDay)
	}

	// Calendar month
	if t, err := time.Parse("2006-01", expr); err == nil {
		from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0).Add(-time.Second), model.PrecisionMonth, nil
	}

	// Quarter, e.g. "2024-Q2"
	if year, quarter, found := strings.Cut(strings.ToUpper(expr), "-Q"); found {
		y, yearErr := strconv.Atoi(year)
		q, quarterErr := strconv.Atoi(quarter)
		if yearErr == nil && quarterErr == nil && q >= 1 && q <= 4 {
			from := time.Date(y, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
			return from, from.AddDate(0, 3, 0).Add(-time.Second), model.PrecisionQuarter, nil
		}
	}

	// Decade, e.g. "1990s"
	if decade, found := strings.CutSuffix(expr, "s"); found {
		if y, err := strconv.Atoi(decade); err == nil && y%10 == 0 && y >= 1000 {
			from := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
			return from, from.AddDate(10, 0, 0).Add(-time.Second), model.PrecisionDecade, nil
		}
	}

	// Calendar year
	if y, err := strconv.Atoi(expr); err == nil && y >= 1000 && y <= 9999 {
		from := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0).Add(-time.Second), model.PrecisionYear, nil
	}

	return time.Time{}, time.Time{}, "", fmt.Errorf("unresolvable date expression %q", expr)
}

func dayRange(day time.Time, precision model.TemporalPrecision) (time.Time, time.Time, model.TemporalPrecision, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1).Add(-time.Second), precision, nil
}
