package vehicles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/model"
)

// Control is what a vehicle driver reports back to the kernel.
type Control interface {
	FetchVehicle(ctx context.Context, name string) (model.Vehicle, error)
	PatchVehicle(name string, fn func(*model.Vehicle) error) error
	MoveVehicle(name, current, next string) error
	FinishOrder(ctx context.Context, order string) error
}

// Report is the body of PATCH /api/vehicles/{name}. Unset fields are left
// unchanged.
type Report struct {
	EnergyLevel *int                `json:"energy_level,omitempty"`
	State       *model.VehicleState `json:"state,omitempty"`
}

// Move is the body of POST /api/vehicles/{name}/move.
type Move struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

// NewControlHandler mounts
//
//	PATCH /api/vehicles/{name}
//	POST  /api/vehicles/{name}/move
//	POST  /api/vehicles/{name}/finish
//
// finish completes the vehicle's current transport order.
func NewControlHandler(ctrl Control) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/vehicles/{name}", func(w http.ResponseWriter, r *http.Request) {
		var rep Report
		if !decode(w, r, &rep) {
			return
		}
		if rep.EnergyLevel != nil && (*rep.EnergyLevel < 0 || *rep.EnergyLevel > 100) {
			reply(w, fmt.Errorf("%w: energy_level must be within 0..100", dispatch.ErrInvalidArgument))
			return
		}
		reply(w, ctrl.PatchVehicle(r.PathValue("name"), func(v *model.Vehicle) error {
			if rep.EnergyLevel != nil {
				v.EnergyLevel = *rep.EnergyLevel
			}
			if rep.State != nil {
				v.State = *rep.State
			}
			return nil
		}))
	})
	mux.HandleFunc("POST /api/vehicles/{name}/move", func(w http.ResponseWriter, r *http.Request) {
		var m Move
		if !decode(w, r, &m) {
			return
		}
		reply(w, ctrl.MoveVehicle(r.PathValue("name"), m.Current, m.Next))
	})
	mux.HandleFunc("POST /api/vehicles/{name}/finish", func(w http.ResponseWriter, r *http.Request) {
		v, err := ctrl.FetchVehicle(r.Context(), r.PathValue("name"))
		if err == nil && v.TransportOrder == "" {
			err = fmt.Errorf("%w: vehicle %s has no transport order", dispatch.ErrNotAssignable, v.Name)
		}
		if err == nil {
			err = ctrl.FinishOrder(r.Context(), v.TransportOrder)
		}
		reply(w, err)
	})
	return mux
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func reply(w http.ResponseWriter, err error) {
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
