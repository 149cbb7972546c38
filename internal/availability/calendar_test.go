package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"05:30", NewTimeOfDay(5, 30, 0), false},
		{"00:00", 0, false},
		{"24:00", EndOfDay, false},
		{"23:59:59", NewTimeOfDay(23, 59, 59), false},
		{" 06:00 ", NewTimeOfDay(6, 0, 0), false},
		{"24:01", 0, true},
		{"12:60", 0, true},
		{"12", 0, true},
		{"ab:cd", 0, true},
		{"-1:00", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimeOfDayString(t *testing.T) {
	assert.Equal(t, "05:30", NewTimeOfDay(5, 30, 0).String())
	assert.Equal(t, "24:00", EndOfDay.String())
	assert.Equal(t, "01:02:03", NewTimeOfDay(1, 2, 3).String())
}

func TestDate(t *testing.T) {
	t.Run("AddDays rolls over months and years", func(t *testing.T) {
		assert.Equal(t, NewDate(2024, time.March, 1), NewDate(2024, time.February, 29).AddDays(1))
		assert.Equal(t, NewDate(2025, time.January, 1), NewDate(2024, time.December, 31).AddDays(1))
		assert.Equal(t, NewDate(2024, time.February, 29), NewDate(2024, time.March, 1).AddDays(-1))
	})

	t.Run("Compare", func(t *testing.T) {
		a := NewDate(2024, time.March, 4)
		b := NewDate(2024, time.March, 5)
		assert.True(t, a.Before(b))
		assert.True(t, b.After(a))
		assert.Equal(t, 0, a.Compare(NewDate(2024, time.March, 4)))
	})

	t.Run("DateOf uses the operating timezone", func(t *testing.T) {
		// 2024-03-04 17:00 UTC is already 2024-03-05 01:00 in +08:00
		instant := time.Date(2024, time.March, 4, 17, 0, 0, 0, time.UTC)
		assert.Equal(t, NewDate(2024, time.March, 5), DateOf(instant, sgt))
	})

	t.Run("ParseDate", func(t *testing.T) {
		d, err := ParseDate("2024-03-04")
		require.NoError(t, err)
		assert.Equal(t, time.Monday, d.Weekday())
		_, err = ParseDate("2024-13-01")
		assert.Error(t, err)
	})
}

func TestResolveWindow(t *testing.T) {
	line := standardLine(t, "NSL")
	monday := NewDate(2024, time.March, 4)

	t.Run("weekday window", func(t *testing.T) {
		w, err := ResolveWindow(line, monday, HolidayCalendar{}, sgt)
		require.NoError(t, err)
		assert.Equal(t, at(2024, time.March, 4, 5, 30), w.Start)
		assert.Equal(t, at(2024, time.March, 5, 0, 0), w.End)
		assert.Equal(t, 66600.0, w.Bound().Seconds())
	})

	t.Run("weekend window", func(t *testing.T) {
		w, err := ResolveWindow(line, NewDate(2024, time.March, 9), HolidayCalendar{}, sgt)
		require.NoError(t, err)
		assert.Equal(t, at(2024, time.March, 9, 6, 0), w.Start)
	})

	t.Run("holiday on a weekday uses the weekend window", func(t *testing.T) {
		holidays := NewHolidayCalendar(monday)
		w, err := ResolveWindow(line, monday, holidays, sgt)
		require.NoError(t, err)
		assert.Equal(t, at(2024, time.March, 4, 6, 0), w.Start)
		assert.Equal(t, at(2024, time.March, 5, 0, 0), w.End)
	})

	t.Run("overnight window ends the next day", func(t *testing.T) {
		w, err := ResolveWindow(overnightLine(t, "CCL"), monday, HolidayCalendar{}, sgt)
		require.NoError(t, err)
		assert.Equal(t, at(2024, time.March, 4, 6, 0), w.Start)
		assert.Equal(t, at(2024, time.March, 5, 1, 0), w.End)
	})

	t.Run("before service start", func(t *testing.T) {
		future := line
		future.ServiceStart = NewDate(2024, time.June, 1)
		_, err := ResolveWindow(future, monday, HolidayCalendar{}, sgt)
		assert.True(t, errors.Is(err, ErrNoServiceWindow))
	})
}

func TestResolveWindowAlwaysPositive(t *testing.T) {
	configs := [][2]string{
		{"05:30", "24:00"},
		{"06:00", "01:00"},
		{"00:00", "00:00"},
		{"23:00", "22:59"},
		{"12:00", "12:00"},
		{"00:00", "24:00"},
	}
	holidays := NewHolidayCalendar(NewDate(2024, time.January, 1))
	for _, cfg := range configs {
		line := Line{
			ID:           "L",
			Weekday:      hours(t, cfg[0], cfg[1]),
			Weekend:      hours(t, cfg[0], cfg[1]),
			ServiceStart: NewDate(2023, time.December, 25),
		}
		for d := line.ServiceStart; d.Before(NewDate(2024, time.January, 20)); d = d.AddDays(1) {
			w, err := ResolveWindow(line, d, holidays, sgt)
			require.NoError(t, err)
			assert.Truef(t, w.End.After(w.Start), "%v on %s: %s >= %s", cfg, d, w.Start, w.End)
		}
	}
}

func TestServiceSpansDoNotOverlap(t *testing.T) {
	// A 23-hour weekday window ending 04:00 next day runs into a Saturday
	// window starting 03:00.
	line := Line{
		ID:           "L",
		Weekday:      hours(t, "05:00", "04:00"),
		Weekend:      hours(t, "03:00", "23:00"),
		ServiceStart: NewDate(2024, time.January, 1),
	}
	friday := NewDate(2024, time.March, 8)
	bound := Bound{Start: friday.Midnight(sgt), End: friday.AddDays(2).Midnight(sgt)}

	spans := serviceSpans(line, bound, HolidayCalendar{}, sgt)
	require.NotEmpty(t, spans)
	for i := 1; i < len(spans); i++ {
		assert.False(t, spans[i].Start.Before(spans[i-1].End), "span %d overlaps previous", i)
	}

	total := 0.0
	for _, s := range spans {
		total += s.Seconds()
	}
	// Thursday tail 00:00-04:00 (4h), Friday 05:00-Sat 04:00 (23h),
	// Saturday trimmed to 04:00-23:00 (19h).
	assert.Equal(t, float64((4+23+19)*3600), total)
}

func TestHolidayCalendar(t *testing.T) {
	var empty HolidayCalendar
	assert.False(t, empty.Contains(NewDate(2024, time.January, 1)))
	assert.Equal(t, 0, empty.Len())

	cal := NewHolidayCalendar(NewDate(2024, time.May, 1), NewDate(2024, time.January, 1))
	assert.True(t, cal.Contains(NewDate(2024, time.May, 1)))
	assert.Equal(t, []Date{NewDate(2024, time.January, 1), NewDate(2024, time.May, 1)}, cal.Dates())
}
