package reputation

import (
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
)

// MaxMetadataURILen bounds an agent's off-chain metadata URI.
const MaxMetadataURILen = 200

var (
	// ErrEmptyAgentID indicates a missing agent identity.
	ErrEmptyAgentID = apperrors.New(apperrors.CodeAgentEmptyID, "agent id is required")
	// ErrMetadataURITooLong indicates an oversized metadata URI.
	ErrMetadataURITooLong = apperrors.New(apperrors.CodeAgentMetadataURITooLong, "agent metadata uri is too long")
)

// Agent is the per-agent mutable aggregate: cached reputation inputs plus the
// agent's available balance. Fields are mutated exclusively by the core
// transitions in this package; no other writer exists.
type Agent struct {
	ID          string
	MetadataURI string
	// Balance is the agent's available (non-escrowed) value.
	Balance uint64
	// ReputationScore caches Score over the current field values.
	ReputationScore uint64
	// TotalVouchesReceived counts vouches naming this agent as vouchee.
	TotalVouchesReceived uint32
	// TotalVouchesGiven counts vouches this agent has placed.
	TotalVouchesGiven uint32
	// TotalStakedFor sums the stake of all currently Active vouches naming
	// this agent as vouchee.
	TotalStakedFor uint64
	DisputesWon    uint32
	DisputesLost   uint32
	RegisteredAt   time.Time
	Version        int64
}

// RegisterAgent creates a new agent record with zeroed counters.
func RegisterAgent(agentID, metadataURI string, now func() time.Time) (Agent, error) {
	if now == nil {
		now = time.Now
	}
	if agentID == "" {
		return Agent{}, ErrEmptyAgentID
	}
	if len(metadataURI) > MaxMetadataURILen {
		return Agent{}, ErrMetadataURITooLong
	}
	return Agent{
		ID:           agentID,
		MetadataURI:  metadataURI,
		RegisteredAt: now().UTC(),
	}, nil
}

// CreditAgent moves value from outside the ledger into an agent's available
// balance.
func CreditAgent(agent Agent, amount uint64) (Agent, funds.Move, error) {
	if amount == 0 {
		return Agent{}, funds.Move{}, apperrors.New(apperrors.CodeFundsZeroAmount, "credit amount must be greater than zero")
	}
	agent.Balance = satAdd(agent.Balance, amount)
	move := funds.Move{From: funds.External, To: funds.AgentAccount(agent.ID), Amount: amount}
	return agent, move, nil
}
