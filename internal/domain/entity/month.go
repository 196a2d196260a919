package entity

import "time"

// MonthID encodes a year-month pair as a dense integer: 1970-01 is 0,
// 1970-02 is 1, and so on. The dense form keys MonthlyStoryCount and the
// monthly storage buckets.
func MonthID(year, month int) int {
	return (year-1970)*12 + (month - 1)
}

// MonthIDOf returns the dense month id of t.
func MonthIDOf(t time.Time) int {
	return MonthID(t.Year(), int(t.Month()))
}

// MonthOfID is the inverse of MonthID.
func MonthOfID(id int) (year, month int) {
	return 1970 + id/12, id%12 + 1
}
