package record

import (
	"math"
	"time"
)

// TrialStats summarizes a trial sequence.
type TrialStats struct {
	Total           int `json:"total"`
	Correct         int `json:"correct"`
	Incorrect       int `json:"incorrect"`
	Prompted        int `json:"prompted"`
	AccuracyPercent int `json:"accuracyPercent"`
}

// ComputeTrialStats derives TrialStats from the full trial sequence.
// AccuracyPercent is round(correct/total*100), or 0 for an empty sequence.
func ComputeTrialStats(trials []TrialRecord) TrialStats {
	var s TrialStats
	for _, t := range trials {
		switch t.Outcome {
		case OutcomeCorrect:
			s.Correct++
		case OutcomeIncorrect:
			s.Incorrect++
		case OutcomePrompted:
			s.Prompted++
		default:
			continue
		}
		s.Total++
	}
	if s.Total > 0 {
		s.AccuracyPercent = int(math.Round(float64(s.Correct) / float64(s.Total) * 100))
	}
	return s
}

// FrequencyRate returns responses per minute over events ordered newest
// first: (N-1) / minutes(t[0] - t[N-1]). It is 0 for fewer than two events or
// a non-positive span.
func FrequencyRate(events []FrequencyEvent) float64 {
	n := len(events)
	if n < 2 {
		return 0
	}
	minutes := events[0].Timestamp.Sub(events[n-1].Timestamp).Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(n-1) / minutes
}

// TotalDuration sums the closed intervals.
func TotalDuration(intervals []DurationInterval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		if iv.End != nil {
			total += iv.End.Sub(iv.Start)
		}
	}
	return total
}
