package usage

import "time"

// Usage is a snapshot of a user's analysis consumption for one UTC day.
type Usage struct {
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	CanProceed bool      `json:"canProceed"`
	Date       string    `json:"date"`
	ResetsAt   time.Time `json:"resetsAt"`
}

const dayFormat = "2006-01-02"

// utcDay truncates t to the start of its UTC calendar day. All quota
// bookkeeping uses this single reference timezone regardless of user locale.
func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func snapshot(used, limit int, day time.Time) Usage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Used:       used,
		Limit:      limit,
		Remaining:  remaining,
		CanProceed: remaining > 0,
		Date:       day.Format(dayFormat),
		ResetsAt:   day.AddDate(0, 0, 1),
	}
}
