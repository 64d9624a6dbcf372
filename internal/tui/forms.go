package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/studyplanner/internal/service"
)

func NewHabitForm(fm *HabitFormModel, title string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Value(&fm.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("habit title cannot be empty")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula())
}

func NewScoreForm(fm *ScoreFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Mock title").
				Placeholder("Mock").
				Value(&fm.Title),
			huh.NewInput().
				Title("Score").
				Value(&fm.Score).
				Validate(func(s string) error {
					if _, ok := service.ParseNumber(s); !ok {
						return fmt.Errorf("score must be a number")
					}
					return nil
				}),
			huh.NewInput().
				Title("Out of").
				Placeholder("100").
				Value(&fm.Total).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					if _, ok := service.ParseNumber(s); !ok {
						return fmt.Errorf("total must be a number")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula())
}

func NewSyncForm(fm *SyncFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sync ID").
				Description("Paste the sync ID shown on your other device.").
				Value(&fm.ID).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("sync ID cannot be empty")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula())
}

func NewConfirmForm(fm *ConfirmFormModel, title string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&fm.Confirmed),
		),
	).WithTheme(huh.ThemeDracula())
}
