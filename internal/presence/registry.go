// ABOUTME: Presence registry interface and the layered memory+shared composition
// ABOUTME: Single source of truth for whether to push a direct notification alongside room broadcast

package presence

import (
	"context"
	"time"
)

// Registry tracks which identities currently hold a live connection and
// when they were last seen.
type Registry interface {
	// SetOnline records a live connection for the identity.
	SetOnline(ctx context.Context, id string) error

	// Heartbeat refreshes the identity's liveness while its socket stays open.
	Heartbeat(ctx context.Context, id string) error

	// SetOffline clears the identity's presence and records last-seen.
	SetOffline(ctx context.Context, id string) error

	// IsOnline reports whether the identity has a live, unexpired presence.
	IsOnline(ctx context.Context, id string) (bool, error)

	// ListOnline returns all identities currently online.
	ListOnline(ctx context.Context) ([]string, error)

	// LastSeen returns when the identity was last connected. The second
	// return value is false when the identity has never been seen.
	LastSeen(ctx context.Context, id string) (time.Time, bool, error)
}

// Layered composes the process-local registry as a cache in front of a
// shared registry, so several gateway instances agree on who is online
// while local lookups stay cheap. Writes go to both; reads prefer the
// local map and fall through to the shared store for identities connected
// to another instance.
type Layered struct {
	local  Registry
	shared Registry
}

// NewLayered wraps local and shared registries into one.
func NewLayered(local, shared Registry) *Layered {
	return &Layered{local: local, shared: shared}
}

var _ Registry = (*Layered)(nil)

func (l *Layered) SetOnline(ctx context.Context, id string) error {
	if err := l.local.SetOnline(ctx, id); err != nil {
		return err
	}
	return l.shared.SetOnline(ctx, id)
}

func (l *Layered) Heartbeat(ctx context.Context, id string) error {
	if err := l.local.Heartbeat(ctx, id); err != nil {
		return err
	}
	return l.shared.Heartbeat(ctx, id)
}

func (l *Layered) SetOffline(ctx context.Context, id string) error {
	if err := l.local.SetOffline(ctx, id); err != nil {
		return err
	}
	return l.shared.SetOffline(ctx, id)
}

func (l *Layered) IsOnline(ctx context.Context, id string) (bool, error) {
	online, err := l.local.IsOnline(ctx, id)
	if err != nil {
		return false, err
	}
	if online {
		return true, nil
	}
	return l.shared.IsOnline(ctx, id)
}

func (l *Layered) ListOnline(ctx context.Context) ([]string, error) {
	// The shared store sees every instance's connections.
	return l.shared.ListOnline(ctx)
}

func (l *Layered) LastSeen(ctx context.Context, id string) (time.Time, bool, error) {
	t, ok, err := l.local.LastSeen(ctx, id)
	if err == nil && ok {
		return t, true, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return l.shared.LastSeen(ctx, id)
}
