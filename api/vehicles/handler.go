// Package vehicles exposes the fleet over HTTP: a status listing and the
// controls a vehicle driver uses to report progress to the kernel.
package vehicles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/model"
)

// FleetReader lists the vehicles known to the kernel.
type FleetReader interface {
	FetchVehicles(ctx context.Context) ([]model.Vehicle, error)
}

// Energy classifications reported in Status.
const (
	EnergyCritical = "critical"
	EnergyDegraded = "degraded"
	EnergyGood     = "good"
)

// Status is a vehicle with its energy classification.
type Status struct {
	model.Vehicle
	Energy string `json:"energy"`
}

func energyOf(v model.Vehicle) string {
	switch {
	case v.IsEnergyLevelCritical():
		return EnergyCritical
	case v.IsEnergyLevelDegraded():
		return EnergyDegraded
	default:
		return EnergyGood
	}
}

// NewStatusHandler returns an HTTP handler exposing vehicle status data via GET /api/vehicles/status.
// The state, proc_state, integration_level and energy query parameters filter the result.
func NewStatusHandler(fleet FleetReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		vehicles, err := fleet.FetchVehicles(r.Context())
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		q := r.URL.Query()
		entries := make([]Status, 0, len(vehicles))
		for _, v := range vehicles {
			s := Status{Vehicle: v, Energy: energyOf(v)}
			if !matches(q.Get("state"), string(v.State)) ||
				!matches(q.Get("proc_state"), string(v.ProcState)) ||
				!matches(q.Get("integration_level"), string(v.IntegrationLevel)) ||
				!matches(q.Get("energy"), s.Energy) {
				continue
			}
			entries = append(entries, s)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func matches(want, got string) bool { return want == "" || want == got }

func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrUnknownObject):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrNotAssignable):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
