// Package chat implements the support conversation core: the conversation
// directory, the message pipeline, read receipts and the assignment policy.
//
// # Overview
//
// Both transports (the websocket gateway and the REST facade) delegate all
// state changes to chat.Service, so the two surfaces share one set of
// semantics. The service validates and authorizes, then hands the mutation
// to storage, where anything touching both a message and its conversation
// runs in one transaction.
//
// # Lifecycle
//
// A conversation is created the first time a user contacts support:
//
//  1. The configured AssignmentStrategy picks the handling agent
//     (single, round_robin, least_busy or availability)
//  2. An existing active conversation for the (user, agent) pair is
//     returned unchanged; otherwise one is created with status open and
//     both unread counters at zero
//
// Every message moves an open conversation to waiting when the user wrote
// it, bumps the recipient's unread counter by exactly one and repoints the
// last-message reference. Resolving or closing is always an explicit staff
// action via UpdateStatus; closed conversations reject new messages, and
// nothing reopens a conversation implicitly.
//
// # Errors
//
// Callers branch on the sentinel errors in errors.go plus store.ErrNotFound
// and media.ErrMediaNotFound. The transports map these onto HTTP statuses
// and the socket "error" event respectively.
package chat
