package service

import (
	"context"
	"strings"
	"time"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/models"
)

type HabitService struct {
	base
}

func NewHabitService(store docstore.Store, namespace string, scope Scope, now func() time.Time) *HabitService {
	return &HabitService{base: newBase(store, namespace, scope, now)}
}

// Add creates a habit owned by the active identity. An empty title or a
// missing identity is a silent no-op returning an empty id.
func (s *HabitService) Add(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", nil
	}

	owner, release, err := s.scope.AcquireWrite()
	if err != nil {
		return "", err
	}
	defer release()
	if owner == "" {
		return "", nil
	}

	var id string
	err = s.run(ctx, "add habit", constants.CollectionHabits, "", func(ctx context.Context) error {
		var err error
		id, err = s.store.Create(ctx, s.path(constants.CollectionHabits), models.NewHabitFields(title, owner))
		return err
	})
	return id, err
}

// Rename replaces the title. An empty title is a silent no-op.
func (s *HabitService) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || id == "" {
		return nil
	}

	_, release, err := s.scope.AcquireWrite()
	if err != nil {
		return err
	}
	defer release()

	return s.run(ctx, "rename habit", constants.CollectionHabits, id, func(ctx context.Context) error {
		return s.store.Update(ctx, s.path(constants.CollectionHabits), id, docstore.Fields{
			constants.FieldTitle: title,
		})
	})
}

// Delete removes the habit permanently. Confirmation is the caller's job.
func (s *HabitService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	_, release, err := s.scope.AcquireWrite()
	if err != nil {
		return err
	}
	defer release()

	return s.run(ctx, "delete habit", constants.CollectionHabits, id, func(ctx context.Context) error {
		return s.store.Delete(ctx, s.path(constants.CollectionHabits), id)
	})
}

// ToggleCompletion removes dateKey when currentlyCompleted, otherwise adds
// it. The direction comes from the caller's view as given; a stale view
// applies the stale intent.
func (s *HabitService) ToggleCompletion(ctx context.Context, id, dateKey string, currentlyCompleted bool) error {
	if id == "" || dateKey == "" {
		return nil
	}

	_, release, err := s.scope.AcquireWrite()
	if err != nil {
		return err
	}
	defer release()

	op := docstore.ArrayUnion(dateKey)
	if currentlyCompleted {
		op = docstore.ArrayRemove(dateKey)
	}
	return s.run(ctx, "update habit", constants.CollectionHabits, id, func(ctx context.Context) error {
		return s.store.Update(ctx, s.path(constants.CollectionHabits), id, docstore.Fields{
			constants.FieldCompletedDates: op,
		})
	})
}
