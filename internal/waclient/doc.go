// Package waclient is the boundary to the messaging network's wire protocol.
//
// A Client delivers connection, credential and message events as one
// strictly ordered stream consumed by a single task, and accepts text and
// image sends while the link is open. The concrete implementation speaks
// JSON frames over a WebSocket relay; everything above this package depends
// only on the Client interface and its event types.
package waclient
