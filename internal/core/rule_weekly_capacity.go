package core

import (
	"context"
	"fmt"

	"sampleflow/pkg/domain"
)

// NewWeeklyCapacityRule returns the in-transaction rule that blocks a commit
// leaving any week with more samples than its plate holds.
func NewWeeklyCapacityRule() domain.Rule {
	return weeklyCapacityRule{}
}

type weeklyCapacityRule struct{}

func (weeklyCapacityRule) Name() string { return "weekly_capacity" }

func (weeklyCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	created := createdSamples(changes)
	if len(created) == 0 {
		return domain.Result{}, nil
	}
	settings := domain.DefaultSettings()
	if latest, ok := view.LatestSettings(); ok {
		resolved, err := domain.ResolveSettings(latest.Values)
		if err != nil {
			return domain.Result{}, err
		}
		settings = resolved
	}
	limit := settings.MaxSamples()

	res := domain.Result{}
	checked := make(map[Week]bool)
	for _, sample := range created {
		week := WeekOf(sample.Date)
		if checked[week] {
			continue
		}
		checked[week] = true
		rng := WeekRangeOf(sample.Date)
		count := len(view.SamplesBetween(rng.Start, rng.End))
		if count > limit {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "weekly_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("week %s over capacity: %d/%d samples", week, count, limit),
				Entity:   domain.EntitySample,
				EntityID: sample.PrimaryKey,
			})
		}
	}
	return res, nil
}
