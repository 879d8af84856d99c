// ABOUTME: Request credential extraction for HTTP and websocket handshakes
// ABOUTME: Bearer header for REST, token query parameter fallback for websockets

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoCredential is returned when a request carries no usable credential.
var ErrNoCredential = errors.New("missing credential")

// ExtractBearerToken extracts a bearer token from an Authorization header value.
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrNoCredential
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// TokenFromRequest pulls the credential off an incoming request. The
// Authorization header wins; the "token" query parameter is accepted for
// websocket handshakes, where browsers cannot set headers.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		return ExtractBearerToken(h)
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", ErrNoCredential
}

// Authenticate resolves the request credential to an Identity.
func Authenticate(r *http.Request, verifier TokenVerifier) (Identity, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return Identity{}, err
	}
	return verifier.Verify(token)
}
