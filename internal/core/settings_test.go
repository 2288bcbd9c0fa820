package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sampleflow/pkg/domain"
)

func TestCurrentSettingsCreatesDefaultsOnce(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		settings, err := env.svc.CurrentSettings(ctx)
		if err != nil {
			t.Fatalf("current settings: %v", err)
		}
		if settings.PlateRows != 8 || settings.PlateCols != 12 || settings.LastSubmissionDay != 3 {
			t.Fatalf("unexpected defaults %+v", settings)
		}
	}
	history, err := env.svc.SettingsHistory(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Author != DefaultSettingsAuthor {
		t.Fatalf("expected a single default version, got %+v", history)
	}
}

func TestUpdateSettingsAppendsVersion(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	values := map[string]any{
		domain.SettingPlateRows:         4,
		domain.SettingPlateCols:         6,
		domain.SettingRunningOptions:    []any{"fast"},
		domain.SettingLastSubmissionDay: 5,
		"comment":                       "short week",
	}
	msg, err := env.svc.UpdateSettings(ctx, "admin@embl.de", values)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if msg != "Settings updated by admin@embl.de at 2022-01-03 09:30:00" {
		t.Fatalf("unexpected message %q", msg)
	}
	settings, err := env.svc.CurrentSettings(ctx)
	if err != nil {
		t.Fatalf("current settings: %v", err)
	}
	if settings.MaxSamples() != 24 || !settings.AllowsRunningOption("fast") {
		t.Fatalf("settings not applied: %+v", settings)
	}
	if settings.Extra["comment"] != "short week" {
		t.Fatalf("extra key lost: %+v", settings.Extra)
	}

	if _, err := env.svc.UpdateSettings(ctx, "admin@embl.de", map[string]any{domain.SettingPlateRows: 2}); err == nil {
		t.Fatalf("expected partial update to be rejected")
	} else {
		var validation domain.ValidationError
		if !errors.As(err, &validation) || !strings.Contains(validation.Message, domain.SettingPlateCols) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	history, _ := env.svc.SettingsHistory(ctx)
	if len(history) != 1 {
		t.Fatalf("expected only the accepted version, got %d", len(history))
	}
}

func TestOlderSettingsVersionsBackfillDefaults(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	if _, err := env.svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.AppendSettings(domain.SettingsVersion{Author: "legacy", Values: map[string]any{domain.SettingPlateRows: 2}})
		return err
	}); err != nil {
		t.Fatalf("append legacy settings: %v", err)
	}
	settings, err := env.svc.CurrentSettings(ctx)
	if err != nil {
		t.Fatalf("current settings: %v", err)
	}
	if settings.PlateRows != 2 || settings.PlateCols != 12 || len(settings.RunningOptions) != 2 {
		t.Fatalf("expected backfilled defaults, got %+v", settings)
	}
}
