package core

import (
	"context"
	"fmt"
	"time"

	"sampleflow/pkg/domain"
)

// DefaultSettingsAuthor is recorded on the version created when none exists.
const DefaultSettingsAuthor = "default"

// ensureSettings returns the newest settings version, appending the defaults
// first when the log is empty.
func ensureSettings(tx Transaction, now time.Time) (domain.SettingsVersion, error) {
	if latest, ok := tx.LatestSettings(); ok {
		return latest, nil
	}
	return tx.AppendSettings(domain.SettingsVersion{
		Timestamp: now,
		Author:    DefaultSettingsAuthor,
		Values:    domain.DefaultSettingsValues(),
	})
}

func (s *Service) currentSettings(ctx context.Context) (domain.Settings, error) {
	var (
		latest domain.SettingsVersion
		found  bool
	)
	if err := s.store.View(ctx, func(view TransactionView) error {
		latest, found = view.LatestSettings()
		return nil
	}); err != nil {
		return domain.Settings{}, err
	}
	if !found {
		if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			latest, err = ensureSettings(tx, s.now())
			return err
		}); err != nil {
			return domain.Settings{}, fmt.Errorf("create default settings: %w", err)
		}
		s.logger.Info("created default settings")
	}
	return domain.ResolveSettings(latest.Values)
}

// CurrentSettings returns the newest settings with defaults filled in for any
// key an older version lacks. The first call persists the defaults.
func (s *Service) CurrentSettings(ctx context.Context) (domain.Settings, error) {
	var out domain.Settings
	err := s.run(ctx, OpCurrentSettings, func(ctx context.Context) error {
		var err error
		out, err = s.currentSettings(ctx)
		return err
	})
	return out, err
}

// UpdateSettings appends a new settings version authored by author.
func (s *Service) UpdateSettings(ctx context.Context, author string, values map[string]any) (string, error) {
	var message string
	err := s.run(ctx, OpUpdateSettings, func(ctx context.Context) error {
		if _, err := domain.ValidateSettingsUpdate(values); err != nil {
			return err
		}
		var appended domain.SettingsVersion
		if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			appended, err = tx.AppendSettings(domain.SettingsVersion{
				Timestamp: s.now(),
				Author:    author,
				Values:    values,
			})
			return err
		}); err != nil {
			return err
		}
		message = fmt.Sprintf("Settings updated by %s at %s", appended.Author, appended.Timestamp.Format("2006-01-02 15:04:05"))
		s.logger.Info("settings updated", "author", author, "version", appended.ID)
		return nil
	})
	return message, err
}

// SettingsHistory lists every settings version, oldest first.
func (s *Service) SettingsHistory(ctx context.Context) ([]domain.SettingsVersion, error) {
	var out []domain.SettingsVersion
	err := s.run(ctx, OpSettingsHistory, func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			out = view.ListSettings()
			return nil
		})
	})
	return out, err
}
