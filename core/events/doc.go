// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - CycleEvent: a dispatch cycle completed or failed
//   - OrderCreatedEvent: the dispatcher created a park or recharge order
//   - OrderAssignedEvent: a transport order was assigned to a vehicle
//   - OrderFailedEvent: a transport order reached FAILED or UNROUTABLE
//   - OrderWithdrawnEvent: a withdrawal was requested for an order
//   - VehicleReroutedEvent: a vehicle's remaining drive orders were rerouted
package events
