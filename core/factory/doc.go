// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[routing.EdgeEvaluator]()
//	reg.Register("DISTANCE", func(conf map[string]any) (routing.EdgeEvaluator, error) {
//	    var c struct{ ReversePenalty float64 `json:"reverse_penalty"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return routing.DistanceEvaluator{ReversePenalty: c.ReversePenalty}, nil
//	})
//	ev, err := reg.Create(factory.ModuleConfig{Type: "DISTANCE"})
package factory
