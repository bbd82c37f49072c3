package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	corelog "github.com/kilianp07/agvdispatch/core/logger"
	"github.com/kilianp07/agvdispatch/core/model"
)

// OrderStore gives the API read access to transport orders and lets
// clients submit new ones.
type OrderStore interface {
	FetchTransportOrders(ctx context.Context) ([]model.TransportOrder, error)
	FetchTransportOrder(ctx context.Context, name string) (model.TransportOrder, error)
	CreateTransportOrder(ctx context.Context, c model.TransportOrderCreation) (model.TransportOrder, error)
}

// Option configures the handler built by NewHandler.
type Option func(*handler)

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option { return func(h *handler) { h.token = token } }

// WithOrders mounts the transport order routes.
func WithOrders(orders OrderStore) Option { return func(h *handler) { h.orders = orders } }

// WithLogger sets the logger used for request logs.
func WithLogger(log corelog.Logger) Option {
	return func(h *handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithTimeout bounds how long a request waits for the dispatcher.
func WithTimeout(d time.Duration) Option { return func(h *handler) { h.timeout = d } }

type handler struct {
	ops     dispatch.Operations
	store   logging.LogStore
	orders  OrderStore
	token   string
	timeout time.Duration
	log     corelog.Logger
}

// NewHandler exposes the dispatcher operations over HTTP:
//
//	POST /api/dispatch
//	POST /api/dispatch/vehicles/{name}/withdraw?immediate=
//	POST /api/dispatch/orders/{name}/withdraw?immediate=
//	POST /api/dispatch/vehicles/{name}/reroute?type=
//	POST /api/dispatch/reroute?type=
//	POST /api/dispatch/orders/{name}/assign
//	GET  /api/dispatch/logs
//
// With WithOrders, GET /api/dispatch/orders, GET /api/dispatch/orders/{name}
// and POST /api/dispatch/orders are mounted as well.
func NewHandler(ops dispatch.Operations, store logging.LogStore, opts ...Option) (http.Handler, error) {
	if ops == nil || store == nil {
		return nil, fmt.Errorf("%w: nil parameter provided to NewHandler", dispatch.ErrInvalidArgument)
	}
	h := &handler{ops: ops, store: store, timeout: 30 * time.Second, log: corelog.NopLogger{}}
	for _, o := range opts {
		o(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/dispatch", h.dispatch)
	mux.HandleFunc("POST /api/dispatch/vehicles/{name}/withdraw", h.withdrawByVehicle)
	mux.HandleFunc("POST /api/dispatch/orders/{name}/withdraw", h.withdrawByOrder)
	mux.HandleFunc("POST /api/dispatch/vehicles/{name}/reroute", h.reroute)
	mux.HandleFunc("POST /api/dispatch/reroute", h.rerouteAll)
	mux.HandleFunc("POST /api/dispatch/orders/{name}/assign", h.assignNow)
	mux.HandleFunc("GET /api/dispatch/logs", logsHandler(store, h.log))
	if h.orders != nil {
		mux.HandleFunc("GET /api/dispatch/orders", h.listOrders)
		mux.HandleFunc("GET /api/dispatch/orders/{name}", h.getOrder)
		mux.HandleFunc("POST /api/dispatch/orders", h.createOrder)
	}
	return requestLogger(h.log, RequireToken(h.token, mux)), nil
}

// call runs op with the request deadline and writes the outcome.
func (h *handler) call(w http.ResponseWriter, r *http.Request, op func(context.Context) error) {
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	if err := op(ctx); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) dispatch(w http.ResponseWriter, r *http.Request) {
	h.call(w, r, h.ops.Dispatch)
}

func (h *handler) withdrawByVehicle(w http.ResponseWriter, r *http.Request) {
	immediate, err := boolParam(r, "immediate")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	name := r.PathValue("name")
	h.call(w, r, func(ctx context.Context) error { return h.ops.WithdrawByVehicle(ctx, name, immediate) })
}

func (h *handler) withdrawByOrder(w http.ResponseWriter, r *http.Request) {
	immediate, err := boolParam(r, "immediate")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	name := r.PathValue("name")
	h.call(w, r, func(ctx context.Context) error { return h.ops.WithdrawByTransportOrder(ctx, name, immediate) })
}

func (h *handler) reroute(w http.ResponseWriter, r *http.Request) {
	t, err := reroutingParam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	name := r.PathValue("name")
	h.call(w, r, func(ctx context.Context) error { return h.ops.Reroute(ctx, name, t) })
}

func (h *handler) rerouteAll(w http.ResponseWriter, r *http.Request) {
	t, err := reroutingParam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.call(w, r, func(ctx context.Context) error { return h.ops.RerouteAll(ctx, t) })
}

func (h *handler) assignNow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h.call(w, r, func(ctx context.Context) error { return h.ops.AssignNow(ctx, name) })
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.FetchTransportOrders(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	state := r.URL.Query().Get("state")
	out := make([]model.TransportOrder, 0, len(orders))
	for _, o := range orders {
		if state == "" || string(o.State) == state {
			out = append(out, o)
		}
	}
	writeJSON(w, r, h.log, http.StatusOK, out)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.FetchTransportOrder(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, o)
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var c model.TransportOrderCreation
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: invalid json body: %v", dispatch.ErrInvalidArgument, err))
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, h.log, fmt.Errorf("%w: body must contain only one JSON object", dispatch.ErrInvalidArgument))
		return
	}
	o, err := h.orders.CreateTransportOrder(r.Context(), c)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusCreated, o)
}

func boolParam(r *http.Request, key string) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", dispatch.ErrInvalidArgument, key)
	}
	return b, nil
}

func reroutingParam(r *http.Request) (model.ReroutingType, error) {
	t, err := model.ParseReroutingType(r.URL.Query().Get("type"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", dispatch.ErrInvalidArgument, err)
	}
	return t, nil
}
