package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestResolveYesterday(t *testing.T) {
	r := Builtin()
	ref := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	start, end, err := r.Resolve("yesterday", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), end)
}

func TestResolveDayWindows(t *testing.T) {
	r := Builtin()
	ref := time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)

	for key, days := range map[string]int{
		"last_2_days":  2,
		"last_3_days":  3,
		"last_7_days":  7,
		"last_30_days": 30,
	} {
		start, end, err := r.Resolve(key, ref)
		require.NoError(t, err, key)
		assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), end, key)
		assert.Equal(t, end.AddDate(0, 0, -days), start, key)
	}
}

func TestResolveThisWeek(t *testing.T) {
	r := Builtin()

	// 2024-03-13 is a Wednesday
	start, end, err := r.Resolve("this_week", time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), start, "should start the preceding Monday")
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), end, "should end at midnight after the reference day")

	// on a Monday the window starts that same day
	start, _, err = r.Resolve("this_week", time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), start)

	// on a Sunday it reaches back six days
	start, _, err = r.Resolve("this_week", time.Date(2024, 3, 17, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), start)
}

func TestResolveThisMonth(t *testing.T) {
	r := Builtin()
	ref := time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)

	start, end, err := r.Resolve("this_month", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestResolveUnknown(t *testing.T) {
	r := Builtin()
	_, _, err := r.Resolve("last_century", time.Now())
	var unknown *UnknownPeriodError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "last_century", unknown.Key)
}

func TestAllPeriodsAreMidnightAligned(t *testing.T) {
	r := Builtin()
	loc := mustLoc(t, "Europe/Bratislava")

	refs := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
		time.Date(2024, 3, 31, 12, 13, 14, 0, loc), // DST transition day
		time.Date(2024, 12, 31, 23, 59, 59, 0, loc),
	}
	for _, def := range r.Definitions() {
		for _, ref := range refs {
			start, end, err := r.Resolve(def.Key, ref)
			require.NoError(t, err)
			assert.True(t, start.Before(end), "%s at %s: start must precede end", def.Key, ref)
			for _, ts := range []time.Time{start, end} {
				h, m, s := ts.Clock()
				assert.Zero(t, h, "%s at %s: not midnight aligned", def.Key, ref)
				assert.Zero(t, m)
				assert.Zero(t, s)
			}
		}
	}
}

func TestRegistryOrderAndReplace(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Key: "a", Range: daysEndingYesterday(1)})
	r.Register(Definition{Key: "b", Range: daysEndingYesterday(2)})
	r.Register(Definition{Key: "a", DisplayName: "replaced", Range: daysEndingYesterday(3)})

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Key, "replacing should keep position")
	assert.Equal(t, "replaced", defs[0].DisplayName)
	assert.Equal(t, "b", defs[1].Key)
}
