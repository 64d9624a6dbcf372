// Package stats derives dashboard metrics from the habit and score views.
// Everything here is a pure function of its inputs.
package stats

import (
	"math"
	"time"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/models"
	"github.com/julianstephens/studyplanner/internal/utils"
)

// Stats summarizes habit completion relative to a reference day.
type Stats struct {
	DailyRate         int `json:"dailyRate"`
	WeeklyConsistency int `json:"weeklyConsistency"`
	LifetimeTotal     int `json:"lifetimeTotal"`
	TodayCount        int `json:"todayCount"`
	TotalCount        int `json:"totalCount"`
}

// Compute evaluates habits against the calendar day of ref in ref's location.
func Compute(habits []models.Habit, ref time.Time) Stats {
	if len(habits) == 0 {
		return Stats{}
	}

	today := utils.DateKey(ref)
	window := utils.LastNDays(ref, constants.WindowDays)

	var s Stats
	var weekChecks int
	for _, h := range habits {
		s.LifetimeTotal += len(h.CompletedDates)
		if h.HasCompleted(today) {
			s.TodayCount++
		}
		for _, key := range window {
			if h.HasCompleted(key) {
				weekChecks++
			}
		}
	}
	s.TotalCount = len(habits)
	s.DailyRate = percent(s.TodayCount, s.TotalCount)
	s.WeeklyConsistency = percent(weekChecks, s.TotalCount*constants.WindowDays)
	return s
}

func percent(num, den int) int {
	if den <= 0 {
		return 0
	}
	return int(math.Round(float64(num) / float64(den) * 100))
}

// Row is one habit's completion flags over the trailing window.
type Row struct {
	Habit models.Habit
	Done  []bool
}

// Grid lays out the trailing window (oldest first) against every habit.
func Grid(habits []models.Habit, ref time.Time) ([]string, []Row) {
	days := utils.LastNDays(ref, constants.WindowDays)
	rows := make([]Row, 0, len(habits))
	for _, h := range habits {
		done := make([]bool, len(days))
		for i, key := range days {
			done[i] = h.HasCompleted(key)
		}
		rows = append(rows, Row{Habit: h, Done: done})
	}
	return days, rows
}

// ScoreSummary aggregates the score log.
type ScoreSummary struct {
	Count          int               `json:"count"`
	AveragePercent float64           `json:"averagePercent"`
	BestPercent    float64           `json:"bestPercent"`
	Latest         *models.MockScore `json:"latest,omitempty"`
}

// SummarizeScores expects scores newest first, as the view orders them.
func SummarizeScores(scores []models.MockScore) ScoreSummary {
	if len(scores) == 0 {
		return ScoreSummary{}
	}
	var sum float64
	best := math.Inf(-1)
	for _, s := range scores {
		p := s.Percent()
		sum += p
		if p > best {
			best = p
		}
	}
	latest := scores[0]
	return ScoreSummary{
		Count:          len(scores),
		AveragePercent: sum / float64(len(scores)),
		BestPercent:    best,
		Latest:         &latest,
	}
}
