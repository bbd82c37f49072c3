package routing

import (
	"fmt"

	"github.com/kilianp07/agvdispatch/core/factory"
)

// Evaluator keys accepted in configuration.
const (
	EvaluatorTravelTime         = "TRAVELTIME"
	EvaluatorDistance           = "DISTANCE"
	EvaluatorHops               = "HOPS"
	EvaluatorExplicitProperties = "EXPLICIT_PROPERTIES"
)

var evaluatorRegistry = factory.NewRegistry[EdgeEvaluator]()

func init() {
	_ = RegisterEvaluator(EvaluatorTravelTime, func(map[string]any) (EdgeEvaluator, error) {
		return TravelTimeEvaluator{}, nil
	})
	_ = RegisterEvaluator(EvaluatorHops, func(map[string]any) (EdgeEvaluator, error) {
		return HopsEvaluator{}, nil
	})
	_ = RegisterEvaluator(EvaluatorDistance, func(conf map[string]any) (EdgeEvaluator, error) {
		var c struct {
			ReversePenalty float64 `json:"reverse_penalty"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.ReversePenalty != 0 && c.ReversePenalty < 1 {
			return nil, fmt.Errorf("reverse_penalty must be >= 1, got %v", c.ReversePenalty)
		}
		return DistanceEvaluator{ReversePenalty: c.ReversePenalty}, nil
	})
	_ = RegisterEvaluator(EvaluatorExplicitProperties, func(conf map[string]any) (EdgeEvaluator, error) {
		var c struct {
			DefaultValue float64 `json:"default_value"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DefaultValue < 0 {
			return nil, fmt.Errorf("default_value must be >= 0, got %v", c.DefaultValue)
		}
		return ExplicitPropertiesEvaluator{DefaultValue: c.DefaultValue}, nil
	})
}

// RegisterEvaluator adds an edge evaluator factory identified by name.
func RegisterEvaluator(name string, f factory.Factory[EdgeEvaluator]) error {
	return evaluatorRegistry.Register(name, f)
}

// KnownEvaluator reports whether name is a registered evaluator key.
func KnownEvaluator(name string) bool { return evaluatorRegistry.Has(name) }

// NewEvaluator builds the evaluator described by cfgs. No configuration
// selects TRAVELTIME; several entries are summed by a Composite.
func NewEvaluator(cfgs []factory.ModuleConfig) (EdgeEvaluator, error) {
	if len(cfgs) == 0 {
		return TravelTimeEvaluator{}, nil
	}
	evs := make([]EdgeEvaluator, 0, len(cfgs))
	for _, c := range cfgs {
		ev, err := evaluatorRegistry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("edge evaluator %s: %w", c.Type, err)
		}
		evs = append(evs, ev)
	}
	if len(evs) == 1 {
		return evs[0], nil
	}
	return NewComposite(evs...), nil
}
