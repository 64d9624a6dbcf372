package service

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/models"
	"github.com/julianstephens/studyplanner/internal/utils"
)

type ScoreService struct {
	base
}

func NewScoreService(store docstore.Store, namespace string, scope Scope, now func() time.Time) *ScoreService {
	return &ScoreService{base: newBase(store, namespace, scope, now)}
}

// ParseNumber parses a user-entered score or total.
func ParseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Add records a score stamped with today's date key. A score that is not a
// number, a total that is neither blank nor a number, or a missing identity
// is a silent no-op. A blank total means out of 100 and a blank title gets
// the placeholder.
func (s *ScoreService) Add(ctx context.Context, title, score, total string) (string, error) {
	value, ok := ParseNumber(score)
	if !ok {
		return "", nil
	}
	outOf := float64(constants.DefaultMockTotal)
	if strings.TrimSpace(total) != "" {
		if outOf, ok = ParseNumber(total); !ok {
			return "", nil
		}
	}

	owner, release, err := s.scope.AcquireWrite()
	if err != nil {
		return "", err
	}
	defer release()
	if owner == "" {
		return "", nil
	}

	fields := models.NewScoreFields(title, value, outOf, utils.DateKey(s.now()), owner)
	var id string
	err = s.run(ctx, "add score", constants.CollectionScores, "", func(ctx context.Context) error {
		var err error
		id, err = s.store.Create(ctx, s.path(constants.CollectionScores), fields)
		return err
	})
	return id, err
}

// Delete removes the score permanently. Confirmation is the caller's job.
func (s *ScoreService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	_, release, err := s.scope.AcquireWrite()
	if err != nil {
		return err
	}
	defer release()

	return s.run(ctx, "delete score", constants.CollectionScores, id, func(ctx context.Context) error {
		return s.store.Delete(ctx, s.path(constants.CollectionScores), id)
	})
}
