package tui

import (
	"context"

	"github.com/julianstephens/studyplanner/internal/session"
)

type liveSession struct {
	*session.Session
}

// FromSession adapts a started session for the dashboard.
func FromSession(s *session.Session) Session {
	return liveSession{s}
}

func (s liveSession) AddHabit(ctx context.Context, title string) (string, error) {
	return s.Habits().Add(ctx, title)
}

func (s liveSession) RenameHabit(ctx context.Context, id, title string) error {
	return s.Habits().Rename(ctx, id, title)
}

func (s liveSession) DeleteHabit(ctx context.Context, id string) error {
	return s.Habits().Delete(ctx, id)
}

func (s liveSession) AddScore(ctx context.Context, title, score, total string) (string, error) {
	return s.Scores().Add(ctx, title, score, total)
}

func (s liveSession) DeleteScore(ctx context.Context, id string) error {
	return s.Scores().Delete(ctx, id)
}
