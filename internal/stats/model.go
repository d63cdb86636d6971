package stats

import "time"

// Stats aggregates a user's learning activity, including the rolling
// consecutive-day streak.
type Stats struct {
	UserID            string     `json:"userId"`
	TotalAnalyses     int        `json:"totalAnalyses"`
	TotalWordsLearned int        `json:"totalWordsLearned"`
	CurrentStreak     int        `json:"currentStreak"`
	LongestStreak     int        `json:"longestStreak"`
	LastActivityDate  *time.Time `json:"lastActivityDate,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

const dayFormat = "2006-01-02"

// utcDay truncates t to the start of its UTC calendar day, the reference
// timezone for streak bookkeeping.
func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return utcDay(a).Equal(utcDay(b))
}
