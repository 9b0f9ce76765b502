// Package hub implements the broadcast layer between telemetry ingest loops
// and viewer sessions.
//
// This package is internal to miclink. A [Hub] keeps a registry of topic
// subscribers and delivers published messages to every subscriber registered
// on the topic at publish time. There is no replay: a subscriber joining
// after a publish never sees it. Delivery to one subscriber failing does not
// affect the others; the failing subscriber is unregistered automatically,
// so the registry heals itself as viewer sessions die.
//
// The main components are:
//
//   - [Hub]: topic registry with Subscribe, Publish and Unsubscribe
//   - [Sink]: the delivery target implemented by viewer sessions
//   - [Subscription]: handle returned by Subscribe, used to unsubscribe
//   - [Envelope]: the wire format published to subscribers
//
// Topics are plain strings. Device deltas go to the per-device topic from
// [DeviceTopic]; operational notices go to [TopicStatus].
//
// Users of the miclink library should not need to interact with this
// package directly.
package hub
