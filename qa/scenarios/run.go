package scenarios

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/factory"
	"github.com/kilianp07/agvdispatch/core/kernel"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
	"github.com/kilianp07/agvdispatch/core/routing"
	"github.com/kilianp07/agvdispatch/infra/logger"
	"github.com/kilianp07/agvdispatch/infra/metrics"
	"github.com/kilianp07/agvdispatch/infra/mqtt"
	"github.com/kilianp07/agvdispatch/internal/eventbus"
)

var errorKinds = map[string]error{
	"invalid_argument": dispatch.ErrInvalidArgument,
	"unknown_object":   dispatch.ErrUnknownObject,
	"not_assignable":   dispatch.ErrNotAssignable,
	"service_failure":  dispatch.ErrServiceFailure,
	"not_running":      dispatch.ErrNotRunning,
}

func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	k, err := sc.Plant.Build(ctx)
	require.NoError(t, err, "build plant")
	cfgs := make([]factory.ModuleConfig, 0, len(sc.Evaluators))
	for _, e := range sc.Evaluators {
		cfgs = append(cfgs, factory.ModuleConfig{Type: e})
	}
	ev, err := routing.NewEvaluator(cfgs)
	require.NoError(t, err)
	d, err := dispatch.NewDispatcher(sc.Dispatch.ToConfig(), k, k,
		func(m *plant.Model) dispatch.Router { return routing.NewRouter(m, ev) }, logger.NopLogger{})
	require.NoError(t, err)

	sink, err := metrics.NewPromSinkWithRegistry(prometheus.NewRegistry())
	require.NoError(t, err)
	bus := eventbus.New()
	defer bus.Close()
	pub := mqtt.NewMockPublisher()
	for _, v := range sc.FailVehicles {
		pub.FailVehicle(v)
	}
	d.SetMetricsSink(sink)
	d.SetEventBus(bus)
	metrics.StartEventCollector(ctx, bus, sink)
	mqtt.StartOrderForwarder(ctx, bus, pub, mqtt.ForwarderOptions{Logger: logger.NopLogger{}})

	d.Start(ctx)
	defer d.Stop()

	for i, st := range sc.Steps {
		err := runStep(ctx, d, k, st)
		if st.Error == "" {
			require.NoError(t, err, "step %d (%s)", i, st.Action)
			continue
		}
		kind, ok := errorKinds[st.Error]
		require.True(t, ok, "step %d: unknown error kind %q", i, st.Error)
		require.True(t, errors.Is(err, kind), "step %d (%s): want %s, got %v", i, st.Action, st.Error, err)
	}
	check(t, ctx, k, pub, sc.Expected)
}

func runStep(ctx context.Context, d *dispatch.Dispatcher, k *kernel.MemoryKernel, st Step) error {
	switch st.Action {
	case ActionDispatch:
		return d.Dispatch(ctx)
	case ActionWithdrawOrder:
		return d.WithdrawByTransportOrder(ctx, st.Order, st.Immediate)
	case ActionWithdrawVehicle:
		return d.WithdrawByVehicle(ctx, st.Vehicle, st.Immediate)
	case ActionReroute:
		return d.Reroute(ctx, st.Vehicle, reroutingType(st.Type))
	case ActionRerouteAll:
		return d.RerouteAll(ctx, reroutingType(st.Type))
	case ActionAssignNow:
		return d.AssignNow(ctx, st.Order)
	case ActionFinish:
		v, err := k.FetchVehicle(ctx, st.Vehicle)
		if err != nil {
			return err
		}
		return k.FinishOrder(ctx, v.TransportOrder)
	case ActionLockPath:
		return k.SetPathLocked(st.Path, true)
	case ActionUnlockPath:
		return k.SetPathLocked(st.Path, false)
	case ActionEnergy:
		return k.PatchVehicle(st.Vehicle, func(v *model.Vehicle) error {
			v.EnergyLevel = st.Level
			return nil
		})
	default:
		return errors.New("unknown action " + st.Action)
	}
}

func reroutingType(s string) model.ReroutingType {
	if s == "" {
		return model.ReroutingRegular
	}
	return model.ReroutingType(strings.ToUpper(s))
}

func check(t *testing.T, ctx context.Context, k *kernel.MemoryKernel, pub *mqtt.MockPublisher, exp Expected) {
	t.Helper()
	for name, want := range exp.Orders {
		o, err := k.FetchTransportOrder(ctx, name)
		if !assert.NoError(t, err, "order %s", name) {
			continue
		}
		assert.Equal(t, want.State, string(o.State), "state of %s", name)
		if want.Vehicle != "" {
			assert.Equal(t, want.Vehicle, o.ProcessingVehicle, "vehicle of %s", name)
		}
	}
	for name, want := range exp.Vehicles {
		v, err := k.FetchVehicle(ctx, name)
		if !assert.NoError(t, err, "vehicle %s", name) {
			continue
		}
		switch want.OrderPrefix {
		case "":
		case "-":
			assert.Empty(t, v.TransportOrder, "order of %s", name)
		default:
			assert.True(t, strings.HasPrefix(v.TransportOrder, want.OrderPrefix), "order of %s is %q", name, v.TransportOrder)
		}
		if want.Position != "" {
			assert.Equal(t, want.Position, v.CurrentPosition, "position of %s", name)
		}
	}
	for vehicle, prefixes := range exp.Forwarded {
		assert.Eventually(t, func() bool {
			sent := pub.Sent(vehicle)
			if len(sent) != len(prefixes) {
				return false
			}
			for i, p := range prefixes {
				if !strings.HasPrefix(sent[i].Order, p) {
					return false
				}
			}
			return true
		}, time.Second, 5*time.Millisecond, "orders forwarded to %s", vehicle)
	}
}
