package stats

import (
	"testing"
	"time"

	"github.com/julianstephens/studyplanner/internal/models"
)

var ref = time.Date(2024, 1, 7, 15, 0, 0, 0, time.Local)

func habit(dates ...string) models.Habit {
	return models.Habit{CompletedDates: dates}
}

func TestComputeEmpty(t *testing.T) {
	if got := Compute(nil, ref); got != (Stats{}) {
		t.Errorf("Compute(nil) = %+v, want zero", got)
	}
}

func TestComputeScenarios(t *testing.T) {
	tests := []struct {
		name   string
		habits []models.Habit
		ref    time.Time
		want   Stats
	}{
		{
			name:   "single habit done today",
			habits: []models.Habit{{Title: "Quant", CompletedDates: []string{"2024-01-01"}}},
			ref:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local),
			want:   Stats{DailyRate: 100, WeeklyConsistency: 14, LifetimeTotal: 1, TodayCount: 1, TotalCount: 1},
		},
		{
			name:   "one of two done today",
			habits: []models.Habit{habit("2024-01-07"), habit()},
			ref:    ref,
			want:   Stats{DailyRate: 50, WeeklyConsistency: 7, LifetimeTotal: 1, TodayCount: 1, TotalCount: 2},
		},
		{
			name: "full week plus history",
			habits: []models.Habit{habit(
				"2023-12-01", "2024-01-01", "2024-01-02", "2024-01-03",
				"2024-01-04", "2024-01-05", "2024-01-06", "2024-01-07",
			)},
			ref:  ref,
			want: Stats{DailyRate: 100, WeeklyConsistency: 100, LifetimeTotal: 8, TodayCount: 1, TotalCount: 1},
		},
		{
			name:   "outside window ignored",
			habits: []models.Habit{habit("2023-12-31"), habit("2024-01-08")},
			ref:    ref,
			want:   Stats{DailyRate: 0, WeeklyConsistency: 0, LifetimeTotal: 2, TodayCount: 0, TotalCount: 2},
		},
		{
			name:   "rounding",
			habits: []models.Habit{habit("2024-01-07"), habit(), habit()},
			ref:    ref,
			want:   Stats{DailyRate: 33, WeeklyConsistency: 5, LifetimeTotal: 1, TodayCount: 1, TotalCount: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.habits, tt.ref); got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDailyRateBounds(t *testing.T) {
	dates := []string{"2024-01-07", "2024-01-06", "2024-01-01"}
	for n := 1; n <= 6; n++ {
		var habits []models.Habit
		for i := 0; i < n; i++ {
			habits = append(habits, habit(dates[:i%len(dates)]...))
		}
		s := Compute(habits, ref)
		if s.DailyRate < 0 || s.DailyRate > 100 {
			t.Errorf("DailyRate = %d out of range for %d habits", s.DailyRate, n)
		}
		if s.WeeklyConsistency < 0 || s.WeeklyConsistency > 100 {
			t.Errorf("WeeklyConsistency = %d out of range for %d habits", s.WeeklyConsistency, n)
		}
	}
}

func TestWeeklyConsistencyMonotonic(t *testing.T) {
	base := []models.Habit{habit("2024-01-03"), habit()}
	before := Compute(base, ref).WeeklyConsistency

	grown := []models.Habit{habit("2024-01-03", "2024-01-04"), habit()}
	after := Compute(grown, ref).WeeklyConsistency
	if after < before {
		t.Errorf("WeeklyConsistency decreased from %d to %d", before, after)
	}
}

func TestLifetimeTotalTracksCompletions(t *testing.T) {
	h := []models.Habit{habit("2024-01-01", "2024-01-02"), habit("2024-01-03")}
	if got := Compute(h, ref).LifetimeTotal; got != 3 {
		t.Fatalf("LifetimeTotal = %d, want 3", got)
	}
	h[1].CompletedDates = append(h[1].CompletedDates, "2024-01-04")
	if got := Compute(h, ref).LifetimeTotal; got != 4 {
		t.Errorf("LifetimeTotal after add = %d, want 4", got)
	}
	h[0].CompletedDates = h[0].CompletedDates[:1]
	if got := Compute(h, ref).LifetimeTotal; got != 3 {
		t.Errorf("LifetimeTotal after remove = %d, want 3", got)
	}
}

func TestGrid(t *testing.T) {
	days, rows := Grid([]models.Habit{habit("2024-01-01", "2024-01-07")}, ref)
	if len(days) != 7 || days[0] != "2024-01-01" || days[6] != "2024-01-07" {
		t.Fatalf("Grid() days = %v", days)
	}
	want := []bool{true, false, false, false, false, false, true}
	for i, done := range rows[0].Done {
		if done != want[i] {
			t.Errorf("Done[%d] = %v, want %v", i, done, want[i])
		}
	}
}

func TestSummarizeScores(t *testing.T) {
	if got := SummarizeScores(nil); got.Count != 0 || got.Latest != nil {
		t.Errorf("SummarizeScores(nil) = %+v", got)
	}

	got := SummarizeScores([]models.MockScore{
		{ID: "new", Score: 45, Total: 50},
		{ID: "old", Score: 30, Total: 60},
		{ID: "bad", Score: 5, Total: 0},
	})
	if got.Count != 3 {
		t.Errorf("Count = %d, want 3", got.Count)
	}
	if got.BestPercent != 90 {
		t.Errorf("BestPercent = %v, want 90", got.BestPercent)
	}
	if got.AveragePercent != (90.0+50.0+0.0)/3 {
		t.Errorf("AveragePercent = %v", got.AveragePercent)
	}
	if got.Latest == nil || got.Latest.ID != "new" {
		t.Errorf("Latest = %+v, want newest", got.Latest)
	}
}
