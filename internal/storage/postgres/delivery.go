package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kopernik-pizza/internal/domain/delivery"
)

const (
	// SKIP LOCKED lets a concurrent transaction move on to the next agent
	// instead of waiting for one that is about to be stamped.
	lockEligibleAgentSQL = `SELECT a.id, a.name, a.available, a.last_assigned_at
		FROM delivery_agents a
		JOIN delivery_zones z ON z.agent_id = a.id
		WHERE z.prefix = $1
		  AND a.available
		  AND (a.last_assigned_at IS NULL OR a.last_assigned_at <= $2)
		ORDER BY a.last_assigned_at ASC NULLS FIRST, a.id
		LIMIT 1
		FOR UPDATE OF a SKIP LOCKED`

	markAgentAssignedSQL = `UPDATE delivery_agents SET last_assigned_at = $2
		WHERE id = $1
		  AND available
		  AND (last_assigned_at IS NULL OR last_assigned_at <= $3)`
)

func (t *tx) FindEligibleDeliveryAgent(ctx context.Context, zonePrefix string, cutoff time.Time) (*delivery.Agent, error) {
	rows, err := t.tx.Query(ctx, lockEligibleAgentSQL, zonePrefix, cutoff)
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("locking agent for zone %s", zonePrefix))
	}
	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (delivery.Agent, error) {
		var a delivery.Agent
		err := row.Scan(&a.ID, &a.Name, &a.Available, &a.LastAssignedAt)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapError(err, fmt.Sprintf("locking agent for zone %s", zonePrefix))
	}
	return &a, nil
}

func (t *tx) MarkAgentAssigned(ctx context.Context, agentID int64, at, cutoff time.Time) error {
	tag, err := t.tx.Exec(ctx, markAgentAssignedSQL, agentID, at, cutoff)
	if err != nil {
		return wrapError(err, fmt.Sprintf("assigning agent %d", agentID))
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrAgentBusy
	}
	return nil
}
