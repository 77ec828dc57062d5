// Package event provides an in-process publish/subscribe bus for
// orchestration notifications.
//
// Subscribers receive events over bounded channels; Publish never blocks,
// so a slow subscriber loses events (counted on the bus) instead of
// stalling the orchestrator's request path. Subscriptions can filter by
// event type. The distribute package bridges this bus to NATS for external
// consumers.
package event
