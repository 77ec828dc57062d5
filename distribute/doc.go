// Package distribute publishes orchestration output to NATS.
//
// The Publisher subscribes to the in-process event bus and forwards every
// event as JSON to percept.events.<type>; pipeline results go to
// percept.results.<pipeline> via PublishResult. Publishing runs on a small
// worker pool with a bounded queue, so NATS backpressure drops messages
// instead of blocking orchestration. Delivery is at-most-once.
package distribute
