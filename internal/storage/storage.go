// Package storage defines persistence contracts for ledger state.
//
// All writes flow through Apply, which commits a Mutation atomically:
// either every record update, fund move, and audit event in the mutation
// lands, or none do. Versioned records use optimistic concurrency; a stale
// version surfaces as ErrVersionConflict and the caller retries from a
// fresh read.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/marketplace"
	"github.com/louisbranch/vouchnet/internal/reputation"
)

var (
	// ErrNotFound indicates a requested persistence record is missing.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = apperrors.New(apperrors.CodeAlreadyExists, "record already exists")
	// ErrVersionConflict indicates a versioned record changed since it was
	// read. The enclosing operation should reload and retry.
	ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "record version conflict")
)

// AuditEvent is an append-only record of a completed ledger operation.
type AuditEvent struct {
	ID         string
	Operation  string
	Actor      string
	EntityID   string
	OccurredAt time.Time
	// Metadata holds operation-specific key/value detail, stored as JSON.
	Metadata map[string]string
}

// Mutation is the unit of atomic change. Records carry the version the
// caller read; the store bumps versions on write and rejects stale ones.
// A record with version zero is inserted instead, and a key conflict rolls
// the mutation back with ErrAlreadyExists. Moves adjust account balances and
// append to the fund journal; the store verifies each debited account covers
// its move.
type Mutation struct {
	Params    *reputation.Params
	Agents    []reputation.Agent
	Vouches   []reputation.Vouch
	Disputes  []reputation.Dispute
	Listings  []marketplace.SkillListing
	Purchases []marketplace.Purchase
	Moves     []funds.Move
	Events    []AuditEvent
}

// Empty reports whether the mutation carries no changes.
func (m Mutation) Empty() bool {
	return m.Params == nil &&
		len(m.Agents) == 0 &&
		len(m.Vouches) == 0 &&
		len(m.Disputes) == 0 &&
		len(m.Listings) == 0 &&
		len(m.Purchases) == 0 &&
		len(m.Moves) == 0 &&
		len(m.Events) == 0
}

// VouchPage stores one page of vouch records.
type VouchPage struct {
	Vouches       []reputation.Vouch
	NextPageToken string
}

// AuditEventPage stores one page of audit events.
type AuditEventPage struct {
	Events        []AuditEvent
	NextPageToken string
}

// Store persists ledger state.
type Store interface {
	// GetParams returns the current ledger parameters.
	GetParams(ctx context.Context) (reputation.Params, error)

	GetAgent(ctx context.Context, agentID string) (reputation.Agent, error)

	GetVouch(ctx context.Context, vouchID string) (reputation.Vouch, error)
	// GetLiveVouchByPair returns the vouch between a voucher and vouchee
	// whose status still reserves the pair (active or disputed).
	GetLiveVouchByPair(ctx context.Context, voucherID, voucheeID string) (reputation.Vouch, error)
	// ListActiveVouchesForVouchee returns active vouches backing an agent,
	// ordered by vouch ID for deterministic payout distribution.
	ListActiveVouchesForVouchee(ctx context.Context, voucheeID string) ([]reputation.Vouch, error)
	ListVouchesForAgent(ctx context.Context, agentID string, pageSize int, pageToken string) (VouchPage, error)

	GetDispute(ctx context.Context, disputeID string) (reputation.Dispute, error)
	// GetOpenDisputeByVouch returns the open dispute against a vouch.
	GetOpenDisputeByVouch(ctx context.Context, vouchID string) (reputation.Dispute, error)

	GetListing(ctx context.Context, listingID string) (marketplace.SkillListing, error)

	// TreasuryBalance returns the accumulated treasury account balance.
	TreasuryBalance(ctx context.Context) (uint64, error)
	// AccountBalance returns the balance of any ledger account.
	AccountBalance(ctx context.Context, account funds.Account) (uint64, error)

	ListAuditEvents(ctx context.Context, pageSize int, pageToken string) (AuditEventPage, error)

	// Apply commits a mutation atomically.
	Apply(ctx context.Context, mutation Mutation) error
}
