// Package gateway is the websocket transport for the support chat.
//
// Every frame is an Envelope{event, data}. Connections authenticate with a
// bearer token before the upgrade, land in a personal identity room, and
// join conversation rooms explicitly. Broadcasts for a conversation fan out
// only after the underlying append has committed.
//
// A recipient who is connected but not joined to the conversation room
// receives a notification:new-message event instead of the room broadcast;
// a recipient with no live connection gets a queued push notification.
package gateway
