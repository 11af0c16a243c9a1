// Package funds models value movement between ledger accounts.
//
// Every core operation that touches value emits a list of Moves. A Move is
// all-or-nothing: the storage layer applies the whole list inside the same
// transaction as the entity mutations, so either every transfer lands or
// none do.
package funds

import "strings"

// Account identifies a balance-bearing party in the ledger.
//
// Accounts are string-keyed: agents hold available balances, vouches and
// disputes hold escrowed value, the treasury accumulates forfeits, and the
// external account represents value entering the system (seeding, deposits).
type Account string

const (
	// Treasury receives forfeited dispute bonds and slashed stake.
	Treasury Account = "treasury"
	// External represents value entering or leaving the ledger's scope.
	External Account = "external"
)

const (
	agentPrefix   = "agent:"
	vouchPrefix   = "vouch:"
	disputePrefix = "dispute:"
)

// AgentAccount returns the available-balance account for an agent.
func AgentAccount(agentID string) Account {
	return Account(agentPrefix + agentID)
}

// VouchAccount returns the escrow account held by a vouch.
func VouchAccount(vouchID string) Account {
	return Account(vouchPrefix + vouchID)
}

// DisputeAccount returns the escrow account held by a dispute.
func DisputeAccount(disputeID string) Account {
	return Account(disputePrefix + disputeID)
}

// AgentID returns the agent identifier for an agent account, or "" when the
// account is not agent-scoped.
func (a Account) AgentID() string {
	if strings.HasPrefix(string(a), agentPrefix) {
		return strings.TrimPrefix(string(a), agentPrefix)
	}
	return ""
}

// Move transfers Amount from one account to another.
type Move struct {
	From   Account
	To     Account
	Amount uint64
}

// Total sums the amounts of a move list. Useful in tests asserting
// conservation across a transition.
func Total(moves []Move) uint64 {
	var total uint64
	for _, m := range moves {
		total += m.Amount
	}
	return total
}
