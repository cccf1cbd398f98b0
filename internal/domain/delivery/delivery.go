package delivery

import (
	"context"
	"regexp"
	"time"

	"github.com/go-faster/errors"
)

// DefaultCooldown is the minimum gap between two assignments of one agent.
const DefaultCooldown = 30 * time.Minute

var (
	// ErrNoPostalCode is returned when an address holds no 5-digit postal code.
	ErrNoPostalCode = errors.New("address has no postal code")
	// ErrAgentBusy is returned when an agent picked as eligible was assigned
	// by someone else before the stamp landed.
	ErrAgentBusy = errors.New("delivery agent no longer eligible")
)

var postalCodeRe = regexp.MustCompile(`\d{5}`)

// Agent is a delivery agent.
type Agent struct {
	ID             int64
	Name           string
	Available      bool
	LastAssignedAt *time.Time
}

// Repository selects and stamps delivery agents.
type Repository interface {
	// FindEligibleDeliveryAgent returns the least recently assigned available
	// agent serving zonePrefix whose last assignment is at or before cutoff,
	// or nil when there is none. Storage implementations lock the returned
	// row for the rest of the transaction.
	FindEligibleDeliveryAgent(ctx context.Context, zonePrefix string, cutoff time.Time) (*Agent, error)
	// MarkAgentAssigned stamps the agent with at, provided it is still
	// eligible relative to cutoff. Returns ErrAgentBusy otherwise.
	MarkAgentAssigned(ctx context.Context, agentID int64, at, cutoff time.Time) error
}

// ExtractPostalCode returns the first run of five digits in address.
func ExtractPostalCode(address string) (string, error) {
	code := postalCodeRe.FindString(address)
	if code == "" {
		return "", ErrNoPostalCode
	}
	return code, nil
}

// ZonePrefix returns the delivery zone of a postal code.
func ZonePrefix(postalCode string) string {
	return postalCode[:3]
}
