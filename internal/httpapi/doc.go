// Package httpapi is the REST facade for clients that are not holding a
// websocket: conversation lifecycle, message history, receipts. All routes
// sit under /api and require a bearer token.
package httpapi
