package core

import (
	"context"

	"sampleflow/pkg/domain"
)

// Remaining reports how many plate slots are still free this week.
type Remaining struct {
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

// ComputeRemaining applies the submission window and plate size to the number
// of samples already recorded this week. weekday is the ISO weekday.
func ComputeRemaining(settings domain.Settings, count, weekday int) Remaining {
	if weekday > settings.LastSubmissionDay {
		return Remaining{Remaining: 0, Message: domain.MessageSubmissionClosed}
	}
	remaining := settings.MaxSamples() - count
	if remaining <= 0 {
		return Remaining{Remaining: 0, Message: domain.MessageAllSamplesTaken}
	}
	return Remaining{Remaining: remaining}
}

// RemainingSamples reports the capacity left for the current week.
func (s *Service) RemainingSamples(ctx context.Context) (Remaining, error) {
	var out Remaining
	err := s.run(ctx, OpRemainingSamples, func(ctx context.Context) error {
		settings, err := s.currentSettings(ctx)
		if err != nil {
			return err
		}
		today := s.today()
		span := WeekRangeOf(today)
		return s.store.View(ctx, func(view TransactionView) error {
			count := len(view.SamplesBetween(span.Start, span.End))
			out = ComputeRemaining(settings, count, Weekday(today))
			return nil
		})
	})
	return out, err
}
