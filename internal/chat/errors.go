// ABOUTME: Error taxonomy for the support conversation core
// ABOUTME: Sentinel errors that transports map onto HTTP statuses and socket error events

package chat

import "errors"

// Authorization errors: the caller is authenticated but not allowed.
var (
	// ErrNotParticipant means the caller is neither of the two conversation participants.
	ErrNotParticipant = errors.New("not a conversation participant")

	// ErrForbidden means the caller's role may not perform this operation.
	ErrForbidden = errors.New("operation not permitted for role")
)

// Validation errors: the request itself is malformed.
var (
	// ErrInvalidPayload means the message payload does not match its type
	// (text without content, media without a reference, or both populated).
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrInvalidStatus means an unknown conversation status was requested.
	ErrInvalidStatus = errors.New("invalid conversation status")

	// ErrSelfRead means a sender tried to mark their own message as read.
	ErrSelfRead = errors.New("cannot mark own message as read")

	// ErrConversationClosed means the conversation no longer accepts messages.
	ErrConversationClosed = errors.New("conversation is closed")
)

// ErrNoSupportAvailable means the assignment policy found no eligible
// support identity. Surfaced as service-unavailable; not retried.
var ErrNoSupportAvailable = errors.New("no support agent available")
