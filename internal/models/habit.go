package models

import (
	"strings"
	"time"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
)

// Habit is one tracked recurring task.
type Habit struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	OwnerID        string    `json:"ownerId"`
	CompletedDates []string  `json:"completedDates"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasCompleted reports whether dateKey is in the completion set.
func (h Habit) HasCompleted(dateKey string) bool {
	for _, d := range h.CompletedDates {
		if d == dateKey {
			return true
		}
	}
	return false
}

// CreatedAtUnix is the sort key for display order. A missing timestamp is 0.
func (h Habit) CreatedAtUnix() int64 {
	return unixOrZero(h.CreatedAt)
}

// NewHabitFields builds the stored document for a new habit.
func NewHabitFields(title, ownerID string) docstore.Fields {
	return docstore.Fields{
		constants.FieldTitle:          strings.TrimSpace(title),
		constants.FieldCompletedDates: []any{},
		constants.FieldOwnerID:        ownerID,
		constants.FieldCreatedAt:      docstore.ServerTimestamp(),
	}
}

// HabitFromDocument decodes a stored document. Missing or mistyped fields
// fall back to their zero values; duplicate date-keys collapse.
func HabitFromDocument(doc docstore.Document) Habit {
	return Habit{
		ID:             doc.ID,
		Title:          stringField(doc.Fields, constants.FieldTitle),
		OwnerID:        stringField(doc.Fields, constants.FieldOwnerID),
		CompletedDates: dateSet(doc.Fields[constants.FieldCompletedDates]),
		CreatedAt:      timeField(doc.Fields, constants.FieldCreatedAt),
	}
}

func dateSet(v any) []string {
	var raw []string
	switch vals := v.(type) {
	case []any:
		for _, item := range vals {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = vals
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
