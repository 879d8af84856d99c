// ABOUTME: Pluggable support-assignment policies for new conversations
// ABOUTME: Strategy selected by configuration: single, round_robin, least_busy, availability

package chat

import (
	"context"
	"fmt"
)

// ConversationCounter supplies per-agent workload numbers to policies.
type ConversationCounter interface {
	CountConversationsBySupport(ctx context.Context, supportID string) (int, error)
	CountActiveConversationsBySupport(ctx context.Context, supportID string) (int, error)
}

// PresenceChecker reports whether a support identity currently has a live connection.
type PresenceChecker interface {
	IsOnline(ctx context.Context, id string) (bool, error)
}

// AssignmentStrategy chooses the support identity that will handle a new
// conversation. Implementations return ErrNoSupportAvailable when no
// eligible agent exists.
type AssignmentStrategy interface {
	Assign(ctx context.Context, userID string) (string, error)
}

// Policy names accepted by NewStrategy.
const (
	PolicySingle       = "single"
	PolicyRoundRobin   = "round_robin"
	PolicyLeastBusy    = "least_busy"
	PolicyAvailability = "availability"
)

// NewStrategy builds the configured assignment strategy over the given
// support roster.
func NewStrategy(policy string, agents []string, counts ConversationCounter, presence PresenceChecker) (AssignmentStrategy, error) {
	switch policy {
	case PolicySingle:
		if len(agents) == 0 {
			return &singleAgent{}, nil
		}
		return &singleAgent{agentID: agents[0]}, nil
	case PolicyRoundRobin:
		return &roundRobin{agents: agents, counts: counts}, nil
	case PolicyLeastBusy:
		return &leastBusy{agents: agents, counts: counts}, nil
	case PolicyAvailability:
		return &availabilityFirst{agents: agents, counts: counts, presence: presence}, nil
	default:
		return nil, fmt.Errorf("unknown assignment policy %q", policy)
	}
}

// singleAgent always assigns the one configured agent.
type singleAgent struct {
	agentID string
}

func (s *singleAgent) Assign(ctx context.Context, userID string) (string, error) {
	if s.agentID == "" {
		return "", ErrNoSupportAvailable
	}
	return s.agentID, nil
}

// roundRobin balances by total conversation count: the agent with the
// fewest conversations ever assigned takes the next one. Ties break on
// roster order so assignment stays deterministic.
type roundRobin struct {
	agents []string
	counts ConversationCounter
}

func (r *roundRobin) Assign(ctx context.Context, userID string) (string, error) {
	return pickFewest(ctx, r.agents, r.counts.CountConversationsBySupport)
}

// leastBusy balances by active conversation count.
type leastBusy struct {
	agents []string
	counts ConversationCounter
}

func (l *leastBusy) Assign(ctx context.Context, userID string) (string, error) {
	return pickFewest(ctx, l.agents, l.counts.CountActiveConversationsBySupport)
}

// availabilityFirst prefers agents that are currently online, choosing the
// least busy among them. When nobody is online it falls back to least-busy
// across the whole roster.
type availabilityFirst struct {
	agents   []string
	counts   ConversationCounter
	presence PresenceChecker
}

func (a *availabilityFirst) Assign(ctx context.Context, userID string) (string, error) {
	var online []string
	for _, id := range a.agents {
		ok, err := a.presence.IsOnline(ctx, id)
		if err != nil {
			return "", fmt.Errorf("checking presence for %s: %w", id, err)
		}
		if ok {
			online = append(online, id)
		}
	}
	if len(online) > 0 {
		return pickFewest(ctx, online, a.counts.CountActiveConversationsBySupport)
	}
	return pickFewest(ctx, a.agents, a.counts.CountActiveConversationsBySupport)
}

func pickFewest(ctx context.Context, agents []string, count func(context.Context, string) (int, error)) (string, error) {
	if len(agents) == 0 {
		return "", ErrNoSupportAvailable
	}

	best := ""
	bestCount := -1
	for _, id := range agents {
		n, err := count(ctx, id)
		if err != nil {
			return "", fmt.Errorf("counting conversations for %s: %w", id, err)
		}
		if bestCount < 0 || n < bestCount {
			best = id
			bestCount = n
		}
	}
	return best, nil
}
