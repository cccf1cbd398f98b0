package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Assigner picks a delivery agent for an address and reserves it.
type Assigner struct {
	repo     Repository
	cooldown time.Duration
	now      func() time.Time
}

// NewAssigner creates an Assigner. A zero cooldown selects DefaultCooldown.
func NewAssigner(repo Repository, cooldown time.Duration, now func() time.Time) *Assigner {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Assigner{repo: repo, cooldown: cooldown, now: now}
}

// Assign reserves the least recently used eligible agent for the zone of
// address. It returns nil, nil when no agent is eligible.
func (a *Assigner) Assign(ctx context.Context, address string) (*Agent, error) {
	code, err := ExtractPostalCode(address)
	if err != nil {
		return nil, err
	}
	now := a.now()
	cutoff := now.Add(-a.cooldown)

	agent, err := a.repo.FindEligibleDeliveryAgent(ctx, ZonePrefix(code), cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "find delivery agent")
	}
	if agent == nil {
		return nil, nil
	}
	if err := a.repo.MarkAgentAssigned(ctx, agent.ID, now, cutoff); err != nil {
		return nil, errors.Wrapf(err, "assign agent %d", agent.ID)
	}
	agent.LastAssignedAt = &now
	return agent, nil
}
