package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
)

// Scenario is a plant, a fleet and an initial set of transport orders as
// read from a YAML or JSON file.
type Scenario struct {
	Points          []PointSpec    `yaml:"points" json:"points"`
	Paths           []PathSpec     `yaml:"paths" json:"paths"`
	Locations       []LocationSpec `yaml:"locations" json:"locations"`
	VehicleDefaults VehicleSpec    `yaml:"vehicle_defaults" json:"vehicle_defaults"`
	Vehicles        []VehicleSpec  `yaml:"vehicles" json:"vehicles"`
	Orders          []OrderSpec    `yaml:"orders" json:"orders"`
}

type PointSpec struct {
	Name       string            `yaml:"name" json:"name"`
	X          int64             `yaml:"x" json:"x"`
	Y          int64             `yaml:"y" json:"y"`
	Type       string            `yaml:"type" json:"type"`
	Properties map[string]string `yaml:"properties" json:"properties"`
	// OccupiedBy marks the point as blocked by something outside the fleet.
	OccupiedBy string `yaml:"occupied_by" json:"occupied_by"`
}

type PathSpec struct {
	Name               string            `yaml:"name" json:"name"`
	Source             string            `yaml:"source" json:"source"`
	Destination        string            `yaml:"destination" json:"destination"`
	Length             int64             `yaml:"length" json:"length"`
	MaxVelocity        int               `yaml:"max_velocity" json:"max_velocity"`
	MaxReverseVelocity int               `yaml:"max_reverse_velocity" json:"max_reverse_velocity"`
	Locked             bool              `yaml:"locked" json:"locked"`
	Properties         map[string]string `yaml:"properties" json:"properties"`
}

type LocationSpec struct {
	Name       string            `yaml:"name" json:"name"`
	Type       string            `yaml:"type" json:"type"`
	Links      []string          `yaml:"links" json:"links"`
	Operations []string          `yaml:"operations" json:"operations"`
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// VehicleSpec describes a vehicle. Zero fields take the value from the
// scenario's vehicle_defaults.
type VehicleSpec struct {
	Name                             string            `yaml:"name" json:"name"`
	Type                             string            `yaml:"type" json:"type"`
	Position                         string            `yaml:"position" json:"position"`
	NextPosition                     string            `yaml:"next_position" json:"next_position"`
	EnergyLevel                      int               `yaml:"energy_level" json:"energy_level"`
	EnergyLevelCritical              int               `yaml:"energy_level_critical" json:"energy_level_critical"`
	EnergyLevelGood                  int               `yaml:"energy_level_good" json:"energy_level_good"`
	EnergyLevelSufficientlyRecharged int               `yaml:"energy_level_sufficiently_recharged" json:"energy_level_sufficiently_recharged"`
	EnergyLevelFullyRecharged        int               `yaml:"energy_level_fully_recharged" json:"energy_level_fully_recharged"`
	MaxVelocity                      int               `yaml:"max_velocity" json:"max_velocity"`
	MaxReverseVelocity               int               `yaml:"max_reverse_velocity" json:"max_reverse_velocity"`
	State                            string            `yaml:"state" json:"state"`
	IntegrationLevel                 string            `yaml:"integration_level" json:"integration_level"`
	RechargeOperation                string            `yaml:"recharge_operation" json:"recharge_operation"`
	AllowedOrderTypes                []string          `yaml:"allowed_order_types" json:"allowed_order_types"`
	Properties                       map[string]string `yaml:"properties" json:"properties"`
}

type DestinationSpec struct {
	Target     string            `yaml:"target" json:"target"`
	Operation  string            `yaml:"operation" json:"operation"`
	Properties map[string]string `yaml:"properties" json:"properties"`
}

type OrderSpec struct {
	Name            string            `yaml:"name" json:"name"`
	Type            string            `yaml:"type" json:"type"`
	Destinations    []DestinationSpec `yaml:"destinations" json:"destinations"`
	IntendedVehicle string            `yaml:"intended_vehicle" json:"intended_vehicle"`
	Dispensable     bool              `yaml:"dispensable" json:"dispensable"`
	Deadline        time.Time         `yaml:"deadline" json:"deadline"`
	Properties      map[string]string `yaml:"properties" json:"properties"`
}

// LoadScenario reads a scenario file. The format follows the extension;
// .json is JSON, everything else YAML.
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return DecodeScenario(f, format)
}

// DecodeScenario parses a scenario in the given format ("yaml" or "json").
func DecodeScenario(r io.Reader, format string) (Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	switch strings.ToLower(format) {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&s)
	case "yaml", "yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&s)
		if err == io.EOF {
			err = nil
		}
	default:
		return Scenario{}, fmt.Errorf("%w: unknown scenario format %q", dispatch.ErrInvalidArgument, format)
	}
	if err != nil {
		return Scenario{}, fmt.Errorf("%w: decode scenario: %v", dispatch.ErrInvalidArgument, err)
	}
	return s, nil
}

// PlantModel builds the plant graph of the scenario.
func (s Scenario) PlantModel() (*plant.Model, error) {
	points := make([]model.Point, 0, len(s.Points))
	for _, p := range s.Points {
		t := model.PointType(strings.ToUpper(p.Type))
		if t == "" {
			t = model.PointTypeHalt
		}
		points = append(points, model.Point{
			Name:             p.Name,
			Position:         model.Triple{X: p.X, Y: p.Y},
			Type:             t,
			Properties:       p.Properties,
			OccupyingVehicle: p.OccupiedBy,
		})
	}
	paths := make([]model.Path, 0, len(s.Paths))
	for _, p := range s.Paths {
		paths = append(paths, model.Path{
			Name:               p.Name,
			Source:             p.Source,
			Destination:        p.Destination,
			Length:             p.Length,
			MaxVelocity:        p.MaxVelocity,
			MaxReverseVelocity: p.MaxReverseVelocity,
			Locked:             p.Locked,
			Properties:         p.Properties,
		})
	}
	locations := make([]model.Location, 0, len(s.Locations))
	for _, l := range s.Locations {
		locations = append(locations, model.Location{
			Name:       l.Name,
			Type:       l.Type,
			Links:      l.Links,
			Operations: l.Operations,
			Properties: l.Properties,
		})
	}
	return plant.NewModel(points, paths, locations)
}

// FleetVehicles returns the scenario's vehicles with defaults applied.
func (s Scenario) FleetVehicles() []model.Vehicle {
	d := s.VehicleDefaults
	out := make([]model.Vehicle, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		veh := model.Vehicle{
			Name:                             v.Name,
			Type:                             orString(v.Type, d.Type),
			CurrentPosition:                  v.Position,
			NextPosition:                     v.NextPosition,
			EnergyLevel:                      orInt(v.EnergyLevel, orInt(d.EnergyLevel, 100)),
			EnergyLevelCritical:              orInt(v.EnergyLevelCritical, orInt(d.EnergyLevelCritical, 15)),
			EnergyLevelGood:                  orInt(v.EnergyLevelGood, orInt(d.EnergyLevelGood, 50)),
			EnergyLevelSufficientlyRecharged: orInt(v.EnergyLevelSufficientlyRecharged, orInt(d.EnergyLevelSufficientlyRecharged, 30)),
			EnergyLevelFullyRecharged:        orInt(v.EnergyLevelFullyRecharged, orInt(d.EnergyLevelFullyRecharged, 90)),
			MaxVelocity:                      orInt(v.MaxVelocity, orInt(d.MaxVelocity, 1000)),
			MaxReverseVelocity:               orInt(v.MaxReverseVelocity, orInt(d.MaxReverseVelocity, 1000)),
			State:                            model.VehicleState(strings.ToUpper(orString(v.State, orString(d.State, string(model.VehicleStateIdle))))),
			ProcState:                        model.ProcStateIdle,
			IntegrationLevel:                 model.IntegrationLevel(strings.ToUpper(orString(v.IntegrationLevel, orString(d.IntegrationLevel, string(model.IntegrationToBeUtilized))))),
			RechargeOperation:                orString(v.RechargeOperation, d.RechargeOperation),
			AllowedOrderTypes:                v.AllowedOrderTypes,
			Properties:                       v.Properties,
		}
		if veh.AllowedOrderTypes == nil {
			veh.AllowedOrderTypes = d.AllowedOrderTypes
		}
		out = append(out, veh)
	}
	return out
}

// Build creates a kernel holding the scenario and submits its orders.
func (s Scenario) Build(ctx context.Context) (*MemoryKernel, error) {
	m, err := s.PlantModel()
	if err != nil {
		return nil, err
	}
	k, err := NewMemoryKernel(m, s.FleetVehicles())
	if err != nil {
		return nil, err
	}
	for _, o := range s.Orders {
		c := model.TransportOrderCreation{
			Name:            o.Name,
			Type:            o.Type,
			IntendedVehicle: o.IntendedVehicle,
			Dispensable:     o.Dispensable,
			Deadline:        o.Deadline,
			Properties:      o.Properties,
		}
		for _, d := range o.Destinations {
			c.Destinations = append(c.Destinations, model.Destination{
				Target:     d.Target,
				Operation:  orString(d.Operation, model.OpNop),
				Properties: d.Properties,
			})
		}
		if _, err := k.CreateTransportOrder(ctx, c); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.Name, err)
		}
	}
	return k, nil
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
