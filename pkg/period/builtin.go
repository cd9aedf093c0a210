package period

import "time"

// Builtin returns a registry preloaded with the standard periods. New
// periods only need a Register call; nothing downstream changes.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(Definition{
		Key:         "yesterday",
		DisplayName: "Yesterday",
		Description: "Previous day",
		Range:       daysEndingYesterday(1),
	})
	r.Register(Definition{
		Key:         "last_2_days",
		DisplayName: "Last 2 Days",
		Description: "Previous 2 days ending yesterday",
		Range:       daysEndingYesterday(2),
	})
	r.Register(Definition{
		Key:         "last_3_days",
		DisplayName: "Last 3 Days",
		Description: "Previous 3 days ending yesterday",
		Range:       daysEndingYesterday(3),
	})
	r.Register(Definition{
		Key:         "last_7_days",
		DisplayName: "Last 7 Days",
		Description: "Previous 7 days ending yesterday",
		Range:       daysEndingYesterday(7),
	})
	r.Register(Definition{
		Key:         "this_week",
		DisplayName: "This Week",
		Description: "Current week starting Monday",
		Range:       thisWeek,
	})
	r.Register(Definition{
		Key:         "this_month",
		DisplayName: "This Month",
		Description: "Current month starting on the 1st",
		Range:       thisMonth,
	})
	r.Register(Definition{
		Key:         "last_30_days",
		DisplayName: "Last 30 Days",
		Description: "Previous 30 days ending yesterday",
		Range:       daysEndingYesterday(30),
	})
	return r
}

// daysEndingYesterday covers the n full days before the reference day.
// The reference day itself is excluded because upstream publishes data a
// day behind.
func daysEndingYesterday(n int) RangeFunc {
	return func(ref time.Time) (time.Time, time.Time) {
		end := midnight(ref)
		return end.AddDate(0, 0, -n), end
	}
}

// thisWeek runs from the Monday on or before the reference day through
// the end of the reference day. The window includes today; whether today
// has data yet is upstream's concern, not ours.
func thisWeek(ref time.Time) (time.Time, time.Time) {
	day := midnight(ref)
	sinceMonday := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -sinceMonday), day.AddDate(0, 0, 1)
}

// thisMonth runs from the 1st of the reference month through the end of
// the reference day.
func thisMonth(ref time.Time) (time.Time, time.Time) {
	day := midnight(ref)
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	return first, day.AddDate(0, 0, 1)
}
