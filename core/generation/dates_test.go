package generation

import (
	"testing"
	"time"

	"github.com/siherrmann/facter/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDateRange(t *testing.T) {
	reference := time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)

	t.Run("Relative yesterday resolves against reference date", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("ayer", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2024, 5, 14, 23, 59, 59, 0, time.UTC), to)
		assert.Equal(t, model.PrecisionDay, precision)

		englishFrom, _, _, err := ResolveDateRange("yesterday", reference)
		require.NoError(t, err)
		assert.Equal(t, from, englishFrom)
	})

	t.Run("Relative today and tomorrow", func(t *testing.T) {
		from, _, precision, err := ResolveDateRange("hoy", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, model.PrecisionDay, precision)

		from, _, _, err = ResolveDateRange("mañana", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), from)
	})

	t.Run("Exact timestamp", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("2024-05-14T18:45:00Z", reference)
		require.NoError(t, err)
		assert.Equal(t, from, to)
		assert.Equal(t, time.Date(2024, 5, 14, 18, 45, 0, 0, time.UTC), from)
		assert.Equal(t, model.PrecisionExact, precision)
	})

	t.Run("Calendar day", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("2024-05-14", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2024, 5, 14, 23, 59, 59, 0, time.UTC), to)
		assert.Equal(t, model.PrecisionDay, precision)
	})

	t.Run("Calendar month", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("2024-05", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), to)
		assert.Equal(t, model.PrecisionMonth, precision)
	})

	t.Run("Quarter", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("2024-Q2", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC), to)
		assert.Equal(t, model.PrecisionQuarter, precision)
	})

	t.Run("Year", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("2024", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), to)
		assert.Equal(t, model.PrecisionYear, precision)
	})

	t.Run("Decade", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("1990s", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), to)
		assert.Equal(t, model.PrecisionDecade, precision)
	})

	t.Run("Explicit range", func(t *testing.T) {
		from, to, precision, err := ResolveDateRange("2024-05-10/2024-05-14", reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2024, 5, 14, 23, 59, 59, 0, time.UTC), to)
		assert.Equal(t, model.PrecisionPeriod, precision)
	})

	t.Run("Inverted range fails", func(t *testing.T) {
		_, _, _, err := ResolveDateRange("2024-05-14/2024-05-10", reference)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "inverted range")
	})

	t.Run("Empty and unresolvable expressions fail", func(t *testing.T) {
		_, _, _, err := ResolveDateRange("", reference)
		assert.Error(t, err)

		_, _, _, err = ResolveDateRange("el otro día", reference)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unresolvable date expression")
	})
}
