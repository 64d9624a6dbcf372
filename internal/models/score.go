package models

import (
	"strings"
	"time"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
)

// MockScore is one logged practice-test result.
type MockScore struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Score     float64   `json:"score"`
	Total     float64   `json:"total"`
	Date      string    `json:"date"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Percent is score/total*100, or 0 when total is not positive.
func (s MockScore) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return s.Score / s.Total * 100
}

// DisplayTitle substitutes a placeholder for records stored without a title.
func (s MockScore) DisplayTitle() string {
	if strings.TrimSpace(s.Title) == "" {
		return constants.DefaultMockDisplayTitle
	}
	return s.Title
}

func (s MockScore) CreatedAtUnix() int64 {
	return unixOrZero(s.CreatedAt)
}

// NewScoreFields builds the stored document for a new score. A blank title
// becomes the creation placeholder.
func NewScoreFields(title string, score, total float64, date, ownerID string) docstore.Fields {
	title = strings.TrimSpace(title)
	if title == "" {
		title = constants.DefaultMockTitle
	}
	return docstore.Fields{
		constants.FieldTitle:     title,
		constants.FieldScore:     score,
		constants.FieldTotal:     total,
		constants.FieldDate:      date,
		constants.FieldOwnerID:   ownerID,
		constants.FieldCreatedAt: docstore.ServerTimestamp(),
	}
}

func ScoreFromDocument(doc docstore.Document) MockScore {
	return MockScore{
		ID:        doc.ID,
		Title:     stringField(doc.Fields, constants.FieldTitle),
		Score:     numberField(doc.Fields, constants.FieldScore),
		Total:     numberField(doc.Fields, constants.FieldTotal),
		Date:      stringField(doc.Fields, constants.FieldDate),
		OwnerID:   stringField(doc.Fields, constants.FieldOwnerID),
		CreatedAt: timeField(doc.Fields, constants.FieldCreatedAt),
	}
}
