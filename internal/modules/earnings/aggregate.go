package earnings

import (
	"time"

	"dispatch/internal/types"
)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns Monday 00:00 of t's ISO week.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// windowStart is the earliest instant any part of the summary needs.
func windowStart(now time.Time) time.Time {
	start := startOfWeek(now)
	if m := startOfMonth(now); m.Before(start) {
		start = m
	}
	if d := startOfDay(now).AddDate(0, 0, -(days - 1)); d.Before(start) {
		start = d
	}
	return start
}

// Aggregate folds deliveries into a summary in now's location. Deliveries
// after now are ignored.
func Aggregate(courierID types.ID, deliveries []Delivery, now time.Time) Summary {
	loc := now.Location()
	today := startOfDay(now)
	week := startOfWeek(now)
	month := startOfMonth(now)

	s := Summary{
		CourierID: courierID,
		Daily:     make([]Day, days),
	}
	dayIndex := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, -i)
		key := d.Format(time.DateOnly)
		s.Daily[i] = Day{Date: key, Weekday: d.Weekday().String()}
		dayIndex[key] = i
	}

	for _, dl := range deliveries {
		at := dl.DeliveredAt.In(loc)
		if at.After(now) {
			continue
		}
		if !at.Before(today) {
			s.Today.Earnings += dl.Earnings
			s.Today.Deliveries++
		}
		if !at.Before(week) {
			s.Week.Earnings += dl.Earnings
			s.Week.Deliveries++
		}
		if !at.Before(month) {
			s.Month.Earnings += dl.Earnings
			s.Month.Deliveries++
		}
		if i, ok := dayIndex[at.Format(time.DateOnly)]; ok {
			s.Daily[i].Earnings += dl.Earnings
			s.Daily[i].Deliveries++
		}
	}
	return s
}
