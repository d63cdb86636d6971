package stats

import "time"

// applyActivity folds one completed analysis into the aggregate. Totals grow
// with every analysis; the streak advances at most once per calendar day, so
// re-applying on the same day never double-counts it.
func applyActivity(s Stats, today time.Time, wordsLearned int) Stats {
	today = utcDay(today)
	yesterday := today.AddDate(0, 0, -1)

	s.TotalAnalyses++
	if wordsLearned > 0 {
		s.TotalWordsLearned += wordsLearned
	}

	switch {
	case s.LastActivityDate != nil && sameDay(*s.LastActivityDate, today):
		// already counted today
	case s.LastActivityDate != nil && sameDay(*s.LastActivityDate, yesterday):
		s.CurrentStreak++
	default:
		// gap or first-ever activity
		s.CurrentStreak = 1
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastActivityDate = &today
	return s
}
