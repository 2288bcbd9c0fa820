package core

import (
	"context"
	"fmt"

	"sampleflow/pkg/domain"
)

// NewTubeLineageRule returns the rule requiring every resubmitted sample to
// point at an existing original tube.
func NewTubeLineageRule() domain.Rule {
	return tubeLineageRule{}
}

type tubeLineageRule struct{}

func (tubeLineageRule) Name() string { return "tube_lineage" }

func (tubeLineageRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, sample := range createdSamples(changes) {
		if !sample.IsResubmission() {
			continue
		}
		original, ok := view.FindSample(sample.TubePrimaryKey)
		if ok && original.TubePrimaryKey == original.PrimaryKey {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "tube_lineage",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("sample %s references unknown tube %s", sample.PrimaryKey, sample.TubePrimaryKey),
			Entity:   domain.EntitySample,
			EntityID: sample.PrimaryKey,
		})
	}
	return res, nil
}
