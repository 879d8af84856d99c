// Package auth verifies caller credentials and propagates the resulting
// identity through request contexts.
//
// Token issuance lives in the external auth service; this package only
// validates HS256 JWTs signed with the shared secret and extracts the
// {id, role} identity from the "sub" and "role" claims. Roles are a closed
// set: user, support, admin.
//
// REST requests present the token as a standard Authorization bearer
// header. Websocket handshakes may pass it as a "token" query parameter
// instead, since browsers cannot attach headers to the upgrade request.
//
// Handlers retrieve the caller with FromContext after the transport layer
// has called WithIdentity.
package auth
