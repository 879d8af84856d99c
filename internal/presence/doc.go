// Package presence tracks which identities currently hold a live gateway
// connection.
//
// The in-process Memory registry is the fast path and is authoritative for
// a single instance. When a shared Redis registry is configured, Layered
// puts the local map in front of it as a cache: writes fan out to both,
// and reads fall through so instances see each other's connections. Redis
// entries carry a TTL refreshed by connection heartbeats, which gives
// crashed instances a bounded offline delay instead of ghost presence.
package presence
