package core

import "sampleflow/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewWeeklyCapacityRule())
	engine.Register(NewTubeLineageRule())
	return engine
}

func createdSamples(changes []domain.Change) []domain.Sample {
	var out []domain.Sample
	for _, change := range changes {
		if change.Entity != domain.EntitySample || change.Action != domain.ActionCreate {
			continue
		}
		switch v := change.After.(type) {
		case domain.Sample:
			out = append(out, v)
		case *domain.Sample:
			if v != nil {
				out = append(out, *v)
			}
		}
	}
	return out
}
